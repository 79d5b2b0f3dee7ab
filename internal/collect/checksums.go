package collect

import (
	"bufio"
	"bytes"
	"path"
	"strings"

	"github.com/TimesysGit/vigiles-buildroot/internal/pkginfo"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/logger"
	"github.com/TimesysGit/vigiles-buildroot/internal/utils/security"
	"go.uber.org/zap"
)

var allowedChecksums = map[string]bool{
	"SHA1":   true,
	"SHA224": true,
	"SHA256": true,
	"SHA384": true,
	"SHA512": true,
	"MD2":    true,
	"MD4":    true,
	"MD5":    true,
	"MD6":    true,
}

// AttachChecksums sets the checksums of every package from its .hash
// file, keeping the entries for the downloaded file. It returns the
// packages that have no .hash file.
func AttachChecksums(pkgs pkginfo.Map, t *Tree, log *zap.SugaredLogger) []string {
	log = logger.OrNop(log)
	var missing []string
	for _, name := range pkgs.Names() {
		hashFile, ok := t.HashFiles[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		data, err := security.SafeReadFile(hashFile, security.ResolveSymlinks)
		if err != nil {
			log.Warnf("Could not read %s: %v", hashFile, err)
			continue
		}
		p := pkgs[name]
		p.Checksums = ParseHashFile(data, path.Base(p.DownloadLocation))
	}
	if len(missing) > 0 {
		log.Warnf(".hash files not found for packages: %v", missing)
	}
	return missing
}

// ParseHashFile returns the "<algorithm> <value> <file>" entries of a
// Buildroot .hash file that use an allowed algorithm and name file.
func ParseHashFile(data []byte, file string) []pkginfo.Checksum {
	sums := []pkginfo.Checksum{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		algo := strings.ToUpper(fields[0])
		if !allowedChecksums[algo] || fields[2] != file {
			continue
		}
		sums = append(sums, pkginfo.Checksum{Algorithm: algo, Value: fields[1]})
	}
	return sums
}
