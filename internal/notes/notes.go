// Package notes exports stored vacancies as Markdown notes with YAML front matter.
package notes

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spigell/tg-responder/internal/model"
	"github.com/spigell/tg-responder/internal/utils"
)

const (
	maxNameRunes  = 100
	maxCollisions = 1000
	defaultName   = "vacancy"
	statusNew     = "new"
)

var unsafeName = strings.NewReplacer(
	"/", " ", "\\", " ", ":", " ", "*", " ", "?", " ",
	"\"", " ", "<", " ", ">", " ", "|", " ", "#", " ",
)

// FrontMatter is the metadata block of a note.
type FrontMatter struct {
	Tags        []string `yaml:"tags"`
	Description string   `yaml:"description"`
	Score       int      `yaml:"score"`
	Contact     string   `yaml:"contact"`
	Status      string   `yaml:"status"`
	Created     string   `yaml:"created"`
}

type Sink struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// New returns a sink writing into dir. An empty dir disables the sink.
func New(dir string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{dir: dir, logger: logger, now: time.Now}
}

// Write stores a note for v and returns its path. rec may be nil.
// A missing directory is logged and the note is skipped.
func (s *Sink) Write(v *model.Vacancy, rec *model.Recruiter) (string, error) {
	if s.dir == "" {
		return "", nil
	}

	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		s.logger.Warn("notes directory does not exist, note is skipped", zap.String("dir", s.dir))
		return "", nil
	}

	content, err := Render(s.frontMatter(v, rec), v.Title, v.Text)
	if err != nil {
		return "", err
	}

	f, err := s.create(Filename(v.Title))
	if err != nil {
		return "", err
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return "", fmt.Errorf("writing note %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing note %s: %w", f.Name(), err)
	}

	return f.Name(), nil
}

func (s *Sink) frontMatter(v *model.Vacancy, rec *model.Recruiter) FrontMatter {
	fm := FrontMatter{
		Tags:        []string{"vacancy", "telegram"},
		Description: utils.TruncateForLog(utils.SingleLine(v.Text), 160),
		Score:       v.Score,
		Status:      statusNew,
		Created:     s.now().Format("2006-01-02 15:04"),
	}
	if rec != nil && rec.Handle != "" {
		fm.Contact = "https://t.me/" + rec.Handle
	}
	return fm
}

// create opens a file that did not exist before, adding a numeric suffix on collisions.
func (s *Sink) create(name string) (*os.File, error) {
	for i := 1; i <= maxCollisions; i++ {
		candidate := name
		if i > 1 {
			candidate = fmt.Sprintf("%s %d", name, i)
		}

		path := filepath.Join(s.dir, candidate+".md")
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating note %s: %w", path, err)
		}
		return f, nil
	}

	return nil, fmt.Errorf("too many notes named %q", name)
}

// Render returns the note document.
func Render(fm FrontMatter, title, text string) ([]byte, error) {
	meta, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encoding front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n# ")
	buf.WriteString(title)
	buf.WriteString("\n\n")
	buf.WriteString(strings.TrimSpace(text))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Filename derives a file system safe name from a title, without extension.
func Filename(title string) string {
	name := utils.SingleLine(unsafeName.Replace(title))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > maxNameRunes {
		name = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	name = strings.Trim(name, ". ")

	if name == "" {
		return defaultName
	}
	return name
}
