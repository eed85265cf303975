package worker_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/errs"
	"github.com/yeisme/docvault/pkg/internal/model"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
	"github.com/yeisme/docvault/pkg/internal/storage/mq"
	"github.com/yeisme/docvault/pkg/internal/worker"
	"github.com/yeisme/docvault/pkg/queue"
)

type completion struct {
	fileID  string
	content *string
}

type fakeFiles struct {
	mu          sync.Mutex
	deleted     []string
	renditions  map[blob.Artifact][]byte
	completed   []completion
	deleteErr   error
	existingWeb bool
	// stored 文件 ID 到已存储明文的路径
	stored    map[string]string
	decrypted []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{renditions: map[blob.Artifact][]byte{}, stored: map[string]string{}}
}

func (f *fakeFiles) Delete(_ context.Context, file *model.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}

	f.deleted = append(f.deleted, file.ID)

	return nil
}

func (f *fakeFiles) StoreRendition(_ context.Context, _ *model.File, a blob.Artifact, r io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a == blob.Web && f.existingWeb {
		return errs.ErrDestinationExists
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	f.renditions[a] = data

	return nil
}

func (f *fakeFiles) CompleteProcessing(_ context.Context, fileID string, content *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.completed = append(f.completed, completion{fileID: fileID, content: content})

	return nil
}

func (f *fakeFiles) DecryptToTemp(_ context.Context, file *model.File, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	src, ok := f.stored[file.ID]
	if !ok {
		return "", errs.ErrNotFound
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "plain-*")
	if err != nil {
		return "", err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return "", err
	}

	f.decrypted = append(f.decrypted, tmp.Name())

	return tmp.Name(), tmp.Close()
}

func (f *fakeFiles) completions() []completion {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]completion(nil), f.completed...)
}

type fakeExtractor struct {
	text  string
	err   error
	langs []string
}

func (e *fakeExtractor) ExtractFile(_ context.Context, _ string, language string) (string, error) {
	e.langs = append(e.langs, language)

	return e.text, e.err
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, h/2, color.Black)
	}

	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	return path
}

func ptr(s string) *string { return &s }

func TestFileCreatedImage(t *testing.T) {
	files := newFakeFiles()
	ext := &fakeExtractor{text: "hello"}
	w := worker.New(files, ext)

	err := w.FileCreated(context.Background(), queue.FileCreatedPayload{
		FileID:     "f1",
		UserID:     "u1",
		Language:   ptr("deu"),
		SourcePath: writePNG(t, 2000, 1000),
		MimeType:   "image/png",
	})
	require.NoError(t, err)

	done := files.completions()
	require.Len(t, done, 1)
	assert.Equal(t, "f1", done[0].fileID)
	require.NotNil(t, done[0].content)
	assert.Equal(t, "hello", *done[0].content)
	assert.Equal(t, []string{"deu"}, ext.langs)

	web, err := jpeg.DecodeConfig(bytes.NewReader(files.renditions[blob.Web]))
	require.NoError(t, err)
	assert.Equal(t, worker.WebSize, web.Width)
	assert.Equal(t, worker.WebSize/2, web.Height)

	thumb, err := jpeg.DecodeConfig(bytes.NewReader(files.renditions[blob.Thumb]))
	require.NoError(t, err)
	assert.Equal(t, worker.ThumbSize, thumb.Width)
}

func TestFileCreatedExistingRendition(t *testing.T) {
	files := newFakeFiles()
	files.existingWeb = true
	w := worker.New(files, nil)

	err := w.FileCreated(context.Background(), queue.FileCreatedPayload{
		FileID:     "f1",
		SourcePath: writePNG(t, 300, 300),
		MimeType:   "image/png",
	})
	require.NoError(t, err)

	// 已存在的网页预览视为成功，继续生成缩略图
	assert.Contains(t, files.renditions, blob.Thumb)
	assert.Len(t, files.completions(), 1)
}

func TestFileCreatedOCRFailureStillCompletes(t *testing.T) {
	files := newFakeFiles()
	w := worker.New(files, &fakeExtractor{err: errs.ErrExtractionFailed}, worker.WithoutRenditions())

	err := w.FileCreated(context.Background(), queue.FileCreatedPayload{
		FileID:     "f1",
		SourcePath: writePNG(t, 10, 10),
		MimeType:   "image/png",
	})
	require.NoError(t, err)

	done := files.completions()
	require.Len(t, done, 1)
	assert.Nil(t, done[0].content)
	assert.Empty(t, files.renditions)
}

func TestFileCreatedSkipsNonImages(t *testing.T) {
	files := newFakeFiles()
	ext := &fakeExtractor{text: "never"}
	w := worker.New(files, ext)

	for _, p := range []queue.FileCreatedPayload{
		{FileID: "pdf", SourcePath: "/tmp/x.pdf", MimeType: "application/pdf"},
		{FileID: "nosrc", MimeType: "image/png"},
		{FileID: "gone", SourcePath: filepath.Join(t.TempDir(), "missing.png"), MimeType: "image/png"},
	} {
		require.NoError(t, w.FileCreated(context.Background(), p))
	}

	assert.Empty(t, ext.langs)
	assert.Len(t, files.completions(), 3)
}

func TestFileCreatedDecryptsStoredCopy(t *testing.T) {
	files := newFakeFiles()
	files.stored["f2"] = writePNG(t, 400, 200)
	ext := &fakeExtractor{text: "from vault"}
	w := worker.New(files, ext)

	err := w.FileCreated(context.Background(), queue.FileCreatedPayload{
		FileID:     "f2",
		UserID:     "u1",
		SourcePath: filepath.Join(t.TempDir(), "cleaned-up.png"),
		MimeType:   "image/png",
	})
	require.NoError(t, err)

	require.Len(t, ext.langs, 1)
	done := files.completions()
	require.Len(t, done, 1)
	require.NotNil(t, done[0].content)
	assert.Equal(t, "from vault", *done[0].content)
	assert.NotEmpty(t, files.renditions[blob.Thumb])

	// 临时明文用完即删
	require.Len(t, files.decrypted, 1)
	assert.NoFileExists(t, files.decrypted[0])
}

func TestFileDeleted(t *testing.T) {
	files := newFakeFiles()
	w := worker.New(files, nil)

	require.NoError(t, w.FileDeleted(context.Background(), queue.FileDeletedPayload{FileID: "f1", UserID: "u1"}))
	assert.Equal(t, []string{"f1"}, files.deleted)

	files.deleteErr = errs.ErrIOFailure
	err := w.FileDeleted(context.Background(), queue.FileDeletedPayload{FileID: "f2", UserID: "u1"})
	require.ErrorIs(t, err, errs.ErrIOFailure)
}

func TestHandleIgnoresGarbage(t *testing.T) {
	w := worker.New(newFakeFiles(), nil)

	require.NoError(t, w.Handle(message.NewMessage("1", []byte("not json"))))

	msg, err := queue.NewWatermillMessage(queue.EventDocumentUpdated, queue.TopicFileEvents,
		queue.DocumentUpdatedPayload{DocumentID: "d", UserID: "u"})
	require.NoError(t, err)
	require.NoError(t, w.Handle(msg))
}

func TestRateLimit(t *testing.T) {
	files := newFakeFiles()
	w := worker.New(files, &fakeExtractor{text: "x"},
		worker.WithoutRenditions(),
		worker.WithRateLimit(configs.OCRRateConfig{Enabled: true, RunsPerSecond: 0.001, Burst: 1}))

	p := queue.FileCreatedPayload{FileID: "f1", SourcePath: writePNG(t, 4, 4), MimeType: "image/png"}
	require.NoError(t, w.FileCreated(context.Background(), p))

	// 令牌耗尽，等待超过 ctx 期限
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.Error(t, w.FileCreated(ctx, p))
	assert.Len(t, files.completions(), 1)
}

func TestScale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 400))

	out := worker.Scale(src, 200, draw.ApproxBiLinear)
	assert.Equal(t, 50, out.Bounds().Dx())
	assert.Equal(t, 200, out.Bounds().Dy())

	assert.Same(t, src, worker.Scale(src, 1000, draw.ApproxBiLinear))
}

func TestConsumeOverGoChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := mq.New(ctx, configs.MQConfig{Type: configs.MQTypeGoChannel})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	files := newFakeFiles()
	w := worker.New(files, nil)
	require.NoError(t, w.Register(client, queue.TopicFileEvents))

	go func() { _ = client.Run(ctx) }()
	<-client.Running()

	d := queue.NewDispatcher(client)
	require.NoError(t, d.Dispatch(ctx, []queue.Event{
		queue.FileCreated(queue.FileCreatedPayload{FileID: "f1", UserID: "u1", MimeType: "text/plain"}),
		queue.FileDeleted(queue.FileDeletedPayload{FileID: "f0", UserID: "u1"}),
	}))

	assert.Eventually(t, func() bool {
		files.mu.Lock()
		defer files.mu.Unlock()

		return len(files.completed) == 1 && len(files.deleted) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

var _ worker.Files = (*fakeFiles)(nil)
