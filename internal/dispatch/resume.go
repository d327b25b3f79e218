package dispatch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"
)

func init() {
	// pdfcpu writes its own config directory otherwise.
	api.DisableConfigDir()
}

var validatePDF = defaultValidatePDF

func defaultValidatePDF(path string) error {
	return api.ValidateFile(path, nil)
}

// FindResume returns the first valid PDF in dir in name order, or an empty
// string when there is none.
func FindResume(dir string, log *zap.Logger) string {
	if log == nil {
		log = zap.NewNop()
	}
	if dir == "" {
		return ""
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("resume directory is not readable, sending without attachment",
			zap.String("dir", dir), zap.Error(err))
		return ""
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := validatePDF(path); err != nil {
			log.Warn("skipping invalid resume", zap.String("file", path), zap.Error(err))
			continue
		}
		return path
	}

	log.Warn("no PDF resume found", zap.String("dir", dir))
	return ""
}
