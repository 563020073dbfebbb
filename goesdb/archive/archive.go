package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/lanot/goesrecover/pkg/goes"
	"github.com/lanot/goesrecover/pkg/query"
)

// Result describes what processing one archive produced.
type Result struct {
	WholeCopy bool
	Written   int
}

// Process places the relevant contents of one packaged archive into the
// destination directory. When the request covers everything the archive
// holds, the archive is copied as-is; otherwise it is opened and only the
// matching members are extracted. Safe to call concurrently for different
// archives.
func Process(src, destDir string, q *query.Query) (Result, error) {
	if WholeCopy(q) {
		if err := copyWhole(src, destDir); err != nil {
			return Result{}, err
		}
		return Result{WholeCopy: true, Written: 1}, nil
	}

	n, err := extractMatching(src, destDir, q)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return Result{}, fmt.Errorf("no members of %s matched the request", filepath.Base(src))
	}
	return Result{Written: n}, nil
}

// WholeCopy looks at the lists exactly as submitted: everything
// requested means the whole archive is wanted.
func WholeCopy(q *query.Query) bool {
	switch strings.ToUpper(q.Level) {
	case "L1B":
		return goes.RequestedAllBands(q.OriginalBands())
	case "L2":
		return goes.RequestedAllBands(q.OriginalBands()) &&
			goes.RequestedAllProducts(q.OriginalProducts())
	}
	return false
}

func copyWhole(src, destDir string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(destDir, filepath.Base(src)))
	if err != nil {
		return fmt.Errorf("creating copy: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying archive: %w", err)
	}
	return out.Close()
}

func extractMatching(src, destDir string, q *query.Query) (int, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("reading archive %s: %w", filepath.Base(src), err)
	}
	defer gz.Close()

	written := 0
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("reading archive %s: %w", filepath.Base(src), err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := filepath.Base(hdr.Name)
		if !memberMatches(name, q) {
			continue
		}
		if err := writeMember(filepath.Join(destDir, name), tr); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

func writeMember(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("extracting %s: %w", dest, err)
	}
	return out.Close()
}

// memberMatches applies the band and product rules to one member name.
// L1b members carry a band marker C<bb>_. L2 members carry -L2-<PROD>;
// CMI family members additionally carry a band.
func memberMatches(name string, q *query.Query) bool {
	if strings.ToUpper(q.Level) == "L1B" {
		for _, b := range q.Bands {
			if strings.Contains(name, "C"+b+"_") {
				return true
			}
		}
		return false
	}

	if goes.RequestedAllProducts(q.OriginalProducts()) {
		if !strings.Contains(name, "-L2-") {
			return false
		}
		if strings.Contains(name, "-L2-CMI") {
			return goes.MatchesAnyBand(name, q.Bands)
		}
		return true
	}

	for _, p := range q.Products {
		if !strings.Contains(name, "-L2-"+p) {
			continue
		}
		if strings.HasPrefix(p, "CMI") {
			return goes.MatchesAnyBand(name, q.Bands)
		}
		return true
	}
	return false
}
