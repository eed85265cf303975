package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yeisme/docvault/pkg/app"
	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/ocr"
	"github.com/yeisme/docvault/pkg/log"
)

var (
	ocrLanguage string
	ocrUser     string

	ocrCmd = &cobra.Command{
		Use:   "ocr <image | file-id>",
		Short: "normalize an image and print the extracted text",
		Long: "Run OCR on a local image. With --user the argument is the ID of a stored file,\n" +
			"which is decrypted to a temporary file first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ocrUser == "" {
				p := ocr.New(configs.GetConfig().OCR, ocr.WithLogger(log.Component("ocr")))

				return printOCR(cmd.Context(), cmd.OutOrStdout(), p, args[0])
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				file, _, err := a.Files.Get(ctx, ocrUser, args[0])
				if err != nil {
					return err
				}

				tmp, err := a.Files.DecryptToTemp(ctx, file, "")
				if err != nil {
					return err
				}
				defer os.Remove(tmp)

				return printOCR(ctx, cmd.OutOrStdout(), a.OCR, tmp)
			})
		},
	}
)

func printOCR(ctx context.Context, out io.Writer, p *ocr.Pipeline, path string) error {
	text, err := p.ExtractFile(ctx, path, ocrLanguage)
	if err != nil {
		return err
	}

	fmt.Fprint(out, text)

	return nil
}

func registerOCRCommands() {
	ocrCmd.Flags().StringVarP(&ocrLanguage, "lang", "l", "", "OCR language, defaults to ocr.default_language")
	ocrCmd.Flags().StringVarP(&ocrUser, "user", "u", "", "treat the argument as a stored file owned by this user")
	rootCmd.AddCommand(ocrCmd)
}
