package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Algorithm-App/eval-med-app/internal/agent"
	"github.com/Algorithm-App/eval-med-app/internal/attempts"
	"github.com/Algorithm-App/eval-med-app/internal/rubrics"
	"github.com/Algorithm-App/eval-med-app/internal/students"
	"github.com/Algorithm-App/eval-med-app/internal/workflow"
)

// ErrPurgeNotConfirmed is returned by purge without --yes.
var ErrPurgeNotConfirmed = errors.New("purge not confirmed: re-run with --yes to delete every record")

func rootCmd(open opener, out io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "ecos",
		Short: "Grade simulated oral clinical examinations",
		Long: `ecos grades transcribed or recorded OSCE stations against a scoring rubric
and manages the resulting grade store.

Configuration is read from config.toml (or --config) and ECOS_* environment
variables. The reasoning service key is read from ECOS_AGENT_API_KEY.`,
		SilenceUsage: true,
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (TOML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	withApp := func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := open(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, a, args)
		}
	}

	cmd.AddCommand(
		evaluateCmd(withApp),
		transcribeCmd(withApp),
		gradeCmd(withApp),
		showCmd(withApp),
		exportCmd(withApp),
		purgeCmd(withApp),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ecos version %s\n", Version)
			},
		},
	)

	return cmd
}

type appRunner func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func evaluateCmd(withApp appRunner) *cobra.Command {
	var (
		studentID      string
		casePath       string
		rubricPath     string
		rubricFormat   string
		transcriptPath string
		audioPath      string
		language       string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Grade one attempt and store the result",
		Example: `  ecos evaluate --student AB12CD34 --case cas.txt --rubric grille.json --transcript station.txt
  ecos evaluate --student AB12CD34 --case cas.txt --rubric grille.docx --audio station.m4a`,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			in := workflow.Input{StudentID: studentID}

			clinicalCase, err := os.ReadFile(casePath)
			if err != nil {
				return fmt.Errorf("read clinical case: %w", err)
			}
			in.ClinicalCase = string(clinicalCase)

			if in.Rubric, err = readRubric(rubricPath, rubricFormat); err != nil {
				return err
			}

			if transcriptPath != "" {
				transcript, err := os.ReadFile(transcriptPath)
				if err != nil {
					return fmt.Errorf("read transcript: %w", err)
				}
				in.Transcript = string(transcript)
			}
			if audioPath != "" {
				if in.Audio, err = readAudio(audioPath, language); err != nil {
					return err
				}
			}

			ev, err := a.Attempts.Evaluate(cmd.Context(), attempts.EvaluateCommand{Input: in})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ev)
		}),
	}

	cmd.Flags().StringVarP(&studentID, "student", "s", "", "Student identifier")
	cmd.Flags().StringVar(&casePath, "case", "", "Clinical case text file")
	cmd.Flags().StringVarP(&rubricPath, "rubric", "r", "", "Rubric file (.json, .yaml, .txt, .docx)")
	cmd.Flags().StringVar(&rubricFormat, "rubric-format", "", "Force the rubric format: json, yaml, outline, docx")
	cmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "Transcript text file")
	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "Recording to transcribe when no transcript is given")
	cmd.Flags().StringVar(&language, "language", "", "Recording language (default from config)")
	cmd.MarkFlagRequired("student")
	cmd.MarkFlagRequired("case")
	cmd.MarkFlagRequired("rubric")
	cmd.MarkFlagsOneRequired("transcript", "audio")

	return cmd
}

func transcribeCmd(withApp appRunner) *cobra.Command {
	var (
		studentID string
		audioPath string
		language  string
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Print the transcript of a recording without storing it",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			audio, err := readAudio(audioPath, language)
			if err != nil {
				return err
			}

			t, err := a.Attempts.Transcribe(cmd.Context(), attempts.TranscribeCommand{
				StudentID: studentID,
				Audio:     *audio,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Transcript)
			return err
		}),
	}

	cmd.Flags().StringVarP(&studentID, "student", "s", "", "Student identifier")
	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "Recording file")
	cmd.Flags().StringVar(&language, "language", "", "Recording language (default from config)")
	cmd.MarkFlagRequired("student")
	cmd.MarkFlagRequired("audio")

	return cmd
}

func gradeCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:     "grade <student> <slot> <score>",
		Short:   "Record a human grade (slot 1 or 2, score 0 to 20)",
		Example: "  ecos grade AB12CD34 1 13.5",
		Args:    cobra.ExactArgs(3),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid slot %q: %w", args[1], students.ErrInvalidGrade)
			}
			score, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid score %q: %w", args[2], students.ErrInvalidGrade)
			}

			grade, err := a.Students.RecordHumanGrade(cmd.Context(), students.GradeCommand{
				StudentID: args[0],
				Slot:      slot,
				Score:     score,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), grade)
		}),
	}
}

func showCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "show <student>",
		Short: "Print a student's attempts and human grades",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			rec, err := a.Students.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		}),
	}
}

func exportCmd(withApp appRunner) *cobra.Command {
	var (
		kind   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write stored rows as CSV",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			k, err := students.ParseExportKind(kind)
			if err != nil {
				return err
			}

			exp, err := a.Students.Export(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return students.WriteCSV(cmd.OutOrStdout(), exp, k)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := students.WriteCSV(f, exp, k); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}),
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", string(students.ExportAIResults), "Rows to export: ai, human, students")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")

	return cmd
}

func purgeCmd(withApp appRunner) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every stored identity, AI result and human grade",
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			req, err := a.Students.RequestPurge(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "students: %d, ai_results: %d, human_grades: %d\n",
				req.Counts.Students, req.Counts.AIResults, req.Counts.HumanGrades)

			if !yes {
				return ErrPurgeNotConfirmed
			}

			deleted, err := a.Students.ConfirmPurge(cmd.Context(), students.PurgeConfirmation{
				Token:        req.Token,
				Acknowledged: true,
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(out, "deleted %d students\n", deleted.Students)
			return err
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm the purge")

	return cmd
}

func readRubric(path, format string) (*rubrics.Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}

	src := rubrics.Source{Filename: filepath.Base(path), Data: data}
	if src.Format, err = rubrics.ParseFormat(format); err != nil {
		return nil, err
	}
	return rubrics.Normalize(src)
}

func readAudio(path, language string) (*agent.Audio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return &agent.Audio{
		Filename: filepath.Base(path),
		Data:     data,
		Language: language,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
