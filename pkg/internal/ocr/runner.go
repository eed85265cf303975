package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yeisme/docvault/pkg/internal/errs"
)

// Runner 调用外部 OCR 程序：<binary> <input> stdout -l <language>.
type Runner struct {
	binary    string
	maxStderr int
}

// NewRunner 创建 Runner，maxStderr 为保留的错误输出字节数，超出部分被读取后丢弃.
func NewRunner(binary string, maxStderr int) *Runner {
	return &Runner{binary: binary, maxStderr: maxStderr}
}

// Run 对 inputPath 执行 OCR 并返回标准输出文本.
// 错误输出在独立的 goroutine 中持续读取，返回前一定已结束.
func (r *Runner) Run(ctx context.Context, inputPath, language string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, inputPath, "stdout", "-l", language)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", errs.Wrap(errs.ErrExtractionFailed, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", errs.Wrap(errs.ErrExtractionFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return "", errs.Wrap(errs.ErrExtractionFailed, fmt.Errorf("start %s: %w", r.binary, err))
	}

	errOut := &boundedBuffer{limit: r.maxStderr}

	var g errgroup.Group

	g.Go(func() error {
		_, err := io.Copy(errOut, stderr)

		return err
	})

	out, readErr := io.ReadAll(stdout)

	// 读取结束后才能 Wait，Wait 会关闭管道
	drainErr := g.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.ErrExtractionFailed, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return "", fmt.Errorf("%w: %s exited with %d: %s",
				errs.ErrExtractionFailed, r.binary, exitErr.ExitCode(), strings.TrimSpace(errOut.String()))
		}

		return "", errs.Wrap(errs.ErrExtractionFailed, waitErr)
	}

	if err := errors.Join(readErr, drainErr); err != nil {
		return "", errs.Wrap(errs.ErrExtractionFailed, err)
	}

	return strings.ToValidUTF8(string(out), "�"), nil
}

// boundedBuffer 最多保留 limit 字节，之后的写入被丢弃但仍报告成功.
type boundedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(room, len(p))])
	}

	return len(p), nil
}

func (b *boundedBuffer) String() string {
	return b.buf.String()
}
