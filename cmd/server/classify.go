package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sonicsight/server/internal/media"
	"github.com/sonicsight/server/internal/models"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// errClassifyFailed is returned after the failure has already been printed.
var errClassifyFailed = errors.New("classification failed")

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	var spectrogramOut string

	cmd := &cobra.Command{
		Use:     "classify <audio-file>",
		Short:   "Classify one audio file from the terminal",
		Example: "  sonicsight classify bark.wav --spectrogram bark.png",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			file, err := openAudioFile(a.fs, args[0])
			if err != nil {
				return err
			}

			result := a.pipeline.Analyze(cmd.Context(), file)
			printResult(cmd.OutOrStdout(), file, result)

			prediction, ok := result.Prediction()
			if !ok {
				return errClassifyFailed
			}
			if spectrogramOut != "" {
				if err := writeSpectrogram(a.fs, spectrogramOut, prediction.SpectrogramDataURI); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("spectrogram written to "+spectrogramOut))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&spectrogramOut, "spectrogram", "s", "", "Write the spectrogram PNG to this path")

	return cmd
}

// openAudioFile describes a local file the way an upload would be. The media
// type is sniffed from content since there is no client to declare one.
func openAudioFile(fs afero.Fs, path string) (*models.UploadedFile, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	mtype, err := mimetype.DetectReader(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to detect media type of %s: %w", path, err)
	}

	return models.NewUploadedFile(filepath.Base(path), mtype.String(), info.Size(), func() (io.ReadCloser, error) {
		return fs.Open(path)
	}), nil
}

func printResult(w io.Writer, file *models.UploadedFile, result models.AnalysisResult) {
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render(file.Filename),
		dimStyle.Render(fmt.Sprintf("(%s, %s)", file.MediaType, humanize.Bytes(uint64(file.Size)))))

	prediction, ok := result.Prediction()
	if !ok {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("error:"), result.Err().Error())
		return
	}

	fmt.Fprintf(w, "  label:      %s\n", labelStyle.Render(prediction.Label))
	fmt.Fprintf(w, "  confidence: %.2f%%\n", prediction.Confidence*100)
}

func writeSpectrogram(fs afero.Fs, path, dataURI string) error {
	_, data, err := media.DecodeDataURI(dataURI)
	if err != nil {
		return fmt.Errorf("failed to decode spectrogram: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write spectrogram: %w", err)
	}
	return nil
}
