package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/app"
	"github.com/yeisme/docvault/pkg/internal/service"
	"github.com/yeisme/docvault/pkg/internal/storage/blob"
)

// processingPoll 等待后处理结束时的轮询间隔.
const processingPoll = 200 * time.Millisecond

var (
	putDocument string
	putPrevious string
	putLanguage string
	putWait     time.Duration

	fileCmd = &cobra.Command{
		Use:   "file",
		Short: "manage stored files",
	}

	filePutCmd = &cobra.Command{
		Use:   "put <user> <path>",
		Short: "encrypt and store a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return putFile(ctx, cmd.OutOrStdout(), a, args[0], args[1])
			})
		},
	}

	fileRmCmd = &cobra.Command{
		Use:   "rm <user> <file-id>",
		Short: "delete a file; its storage is released by the worker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				_, events, err := a.Files.Remove(ctx, args[0], args[1])
				if err != nil {
					return err
				}

				return a.Files.Publish(ctx, events)
			})
		},
	}

	fileRestoreCmd = &cobra.Command{
		Use:   "restore <user> <file-id>",
		Short: "restore a soft-deleted file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				file, events, err := a.Files.Restore(ctx, args[0], args[1])
				if err != nil {
					return err
				}

				if err := a.Files.Publish(ctx, events); err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), file)
			})
		},
	}

	fileCatCmd = &cobra.Command{
		Use:   "cat <user> <file-id> [web|thumb]",
		Short: "decrypt a stored artifact to stdout",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact := blob.Primary
			if len(args) == 3 {
				artifact = blob.Artifact("_" + args[2])
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				file, user, err := a.Files.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}

				rc, err := a.Files.Open(ctx, file, user, artifact)
				if err != nil {
					return err
				}
				defer rc.Close()

				_, err = io.Copy(cmd.OutOrStdout(), rc)

				return err
			})
		},
	}

	fileStatCmd = &cobra.Command{
		Use:   "stat <user> <file-id>",
		Short: "print file metadata and the decrypted size",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				file, user, err := a.Files.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}

				processing, err := a.Files.Tracker().IsProcessing(ctx, file.ID)
				if err != nil {
					return err
				}

				return printJSON(cmd.OutOrStdout(), map[string]any{
					"file":       file,
					"plain_size": a.Files.GetFileSize(ctx, file, user),
					"processing": processing,
				})
			})
		},
	}
)

func putFile(ctx context.Context, out io.Writer, a *app.App, userID, path string) error {
	src, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	req := service.CreateFileRequest{
		Name:           filepath.Base(src),
		PreviousFileID: putPrevious,
		Source:         f,
		SourcePath:     src,
		Size:           info.Size(),
		UserID:         userID,
	}

	if putDocument != "" {
		req.DocumentID = &putDocument
	}

	if putLanguage != "" {
		req.Language = &putLanguage
	}

	file, events, err := a.Files.CreateFile(ctx, req)
	if err != nil {
		return err
	}

	if err := a.Files.Publish(ctx, events); err != nil {
		return err
	}

	// 源文件在后处理结束前必须保留
	if err := waitProcessed(ctx, a, file.ID, putWait); err != nil {
		return err
	}

	return printJSON(out, file)
}

func waitProcessed(ctx context.Context, a *app.App, fileID string, limit time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	ticker := time.NewTicker(processingPoll)
	defer ticker.Stop()

	for {
		busy, err := a.Files.Tracker().IsProcessing(ctx, fileID)
		if err != nil {
			return err
		}

		if !busy {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("file %s still processing: %w", fileID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))

	return err
}

func registerFileCommands() {
	filePutCmd.Flags().StringVar(&putDocument, "doc", "", "document the file belongs to")
	filePutCmd.Flags().StringVar(&putPrevious, "prev", "", "store as a new version of this file id")
	filePutCmd.Flags().StringVarP(&putLanguage, "lang", "l", "", "OCR language")
	filePutCmd.Flags().DurationVar(&putWait, "wait", 5*time.Minute, "how long to wait for post-processing")

	fileCmd.AddCommand(filePutCmd, fileRmCmd, fileRestoreCmd, fileCatCmd, fileStatCmd)
	rootCmd.AddCommand(fileCmd)
}
