package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-qa-backend/internal/domain"
)

func newAnswersCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "answers",
		Aliases: []string{"a"},
		Short:   "Post and list answers on a running server",
	}
	cmd.AddCommand(newAnswersCreateCmd(s), newAnswersListCmd(s))
	return cmd
}

func newAnswersCreateCmd(s *settings) *cobra.Command {
	var (
		questionID, content, key string
		autoKey                  bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post an answer and print its id",
		Long: "Post an answer and print its id. With --idempotency-key (or --auto-key) " +
			"a retried request returns the id of the first answer instead of creating another.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" && autoKey {
				key = uuid.NewString()
			}
			res, err := s.client().CreateAnswer(cmd.Context(), key, domain.QuestionID(questionID), content)
			if err != nil {
				return err
			}
			if res.Replayed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (replayed)\n", res.ID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&questionID, "question-id", "", "id of the question being answered")
	f.StringVar(&content, "content", "", "answer text")
	f.StringVar(&key, "idempotency-key", "", "Idempotency-Key header value")
	f.BoolVar(&autoKey, "auto-key", false, "generate an Idempotency-Key")
	_ = cmd.MarkFlagRequired("question-id")
	_ = cmd.MarkFlagRequired("content")
	cmd.MarkFlagsMutuallyExclusive("idempotency-key", "auto-key")
	return cmd
}

func newAnswersListCmd(s *settings) *cobra.Command {
	var questionID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print answers, optionally for one question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			as, err := s.client().ListAnswers(cmd.Context(), domain.QuestionID(questionID))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), as)
		},
	}
	cmd.Flags().StringVar(&questionID, "question-id", "", "only answers for this question")
	return cmd
}
