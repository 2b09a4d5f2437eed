package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-advisor/internal/advisor"
	"github.com/spigell/job-advisor/internal/ai"
)

const (
	PromptAskAnother = "Ask another"
	PromptReset      = "Reset conversation"
	PromptExit       = "Exit"
)

var nextPrompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptAskAnother, PromptReset, PromptExit},
}

var messagePrompt = promptui.Prompt{
	Label: "Job description",
	Validate: func(input string) error {
		if strings.TrimSpace(input) == "" {
			return errors.New(advisor.NoMessageReason)
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask the advisor from the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		ask(cmd)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringP("message", "m", "", "job description to ask about")
	askCmd.Flags().StringP("file", "f", "", "read the job description from a file")
	askCmd.Flags().Bool("once", false, "print the first answer and exit without the menu")
}

func ask(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := setupLogger()
	if err != nil {
		log.Fatal(err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	session, _, err := buildSession(config, logger)
	if err != nil {
		logger.Fatal("preparing the advisor", zap.Error(err))
	}

	message, err := initialMessage(cmd)
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	once, _ := cmd.Flags().GetBool("once")

	for {
		if message == "" {
			message, err = messagePrompt.Run()
			if err != nil {
				if isPromptExit(err) {
					return
				}
				logger.Fatal("prompt failed", zap.Error(err))
			}
		}

		reply, err := session.Send(ctx, advisor.Request{Message: message})
		message = ""

		switch {
		case err != nil:
			logger.Error("chat failed", zap.String("kind", errorKind(err)), zap.Error(err))
			if once {
				os.Exit(1)
			}
		default:
			fmt.Printf("\n%s\n\n", reply.Text)
		}

		if once {
			return
		}

		_, action, err := nextPrompt.Run()
		if err != nil {
			if isPromptExit(err) {
				return
			}
			logger.Fatal("prompt failed", zap.Error(err))
		}

		switch action {
		case PromptAskAnother:
		case PromptReset:
			session.Reset()
			fmt.Println("Conversation reset")
		case PromptExit:
			return
		}
	}
}

func initialMessage(cmd *cobra.Command) (string, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", file, err)
		}
		return string(data), nil
	}

	message, _ := cmd.Flags().GetString("message")
	return message, nil
}

func isPromptExit(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF)
}

func errorKind(err error) string {
	var (
		authErr     *ai.AuthError
		upstreamErr *ai.UpstreamError
		validErr    *ai.ValidationError
	)

	switch {
	case errors.As(err, &validErr):
		return "validation"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &upstreamErr):
		return "upstream"
	default:
		return "internal"
	}
}
