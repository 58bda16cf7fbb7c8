package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cobrell/internal/bell"
	"cobrell/internal/player"
	logx "cobrell/pkg/logx"
)

// maxClipSize caps uploads at 20 MB, plenty for a bell tone.
const maxClipSize = 20 << 20

var allowedClipExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {},
	".aac": {}, ".wma": {}, ".m4a": {},
}

// ClipInput registers an audio file as a bell tone. SourcePath points at the
// uploaded temp file; the service copies it into the media directory.
type ClipInput struct {
	Name       string `validate:"required,max=120"`
	SourcePath string `validate:"required"`
}

// RegisterClip validates the file, copies it into the media directory,
// probes its duration with ffprobe, and stores the clip row. A failed probe
// leaves duration at 0; the clip stays usable.
func (s *Service) RegisterClip(ctx context.Context, in ClipInput) (*bell.AudioClip, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, asInputError(err)
	}

	ext := strings.ToLower(filepath.Ext(in.SourcePath))
	if _, ok := allowedClipExts[ext]; !ok {
		return nil, inputErr(fmt.Sprintf("format file %s tidak didukung", ext))
	}
	info, err := os.Stat(in.SourcePath)
	if err != nil {
		return nil, inputErr("file tidak ditemukan")
	}
	if info.Size() > maxClipSize {
		return nil, inputErr("ukuran file melebihi 20 MB")
	}

	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return nil, err
	}
	dest := s.uniqueMediaPath(filepath.Base(in.SourcePath))
	if err := copyFile(in.SourcePath, dest); err != nil {
		return nil, err
	}

	duration := player.ProbeDuration(ctx, dest)
	clip, err := s.store.CreateClip(ctx, strings.TrimSpace(in.Name), dest, duration)
	if err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	s.log.Info("clip registered",
		logx.String("name", clip.Name),
		logx.String("path", dest),
		logx.Float64("duration", duration),
	)
	return clip, nil
}

// DeleteClip removes the clip row and its file. Schedules that used the clip
// keep ringing silently (the reference goes NULL in the store).
func (s *Service) DeleteClip(ctx context.Context, id int64) error {
	clip, err := s.store.GetClip(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteClip(ctx, id); err != nil {
		return err
	}
	if err := os.Remove(clip.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("clip file not removed", logx.String("path", clip.Path), logx.Err(err))
	}
	s.log.Info("clip deleted", logx.String("name", clip.Name))
	return nil
}

func (s *Service) ListClips(ctx context.Context) ([]*bell.AudioClip, error) {
	return s.store.ListClips(ctx)
}

// uniqueMediaPath keeps the original filename when free, otherwise appends a
// numeric suffix before the extension.
func (s *Service) uniqueMediaPath(base string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := filepath.Join(s.mediaDir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = filepath.Join(s.mediaDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
