package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const docxMimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// pandocDocxArgs reads HTML on stdin and writes a standalone .docx to
// stdout, titled after the export.
func pandocDocxArgs(title string) []string {
	return []string{
		"--from=html",
		"--to=docx",
		"--standalone",
		"--metadata", "title=" + title,
		"--output=-",
	}
}

func exportDOCX(ctx context.Context, html string, title string) (*Result, error) {
	bin, err := exec.LookPath("pandoc")
	if err != nil {
		return nil, fmt.Errorf("%w: pandoc not found on PATH", ErrDOCXDependencyMissing)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, pandocDocxArgs(title)...)
	cmd.Stdin = strings.NewReader(html)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("export: docx: pandoc exited %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("export: docx: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, errors.New("export: docx: pandoc produced no output")
	}

	return &Result{
		Data:     stdout.Bytes(),
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: docxMimeType,
	}, nil
}
