package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-qa-backend/internal/client"
	"github.com/tbourn/go-qa-backend/internal/domain"
)

func newQuestionsCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "questions",
		Aliases: []string{"q"},
		Short:   "List and edit questions on a running server",
	}
	cmd.AddCommand(
		newQuestionsListCmd(s),
		newQuestionsCreateCmd(s),
		newQuestionsReplaceCmd(s),
		newQuestionsDeleteCmd(s),
	)
	return cmd
}

func newQuestionsListCmd(s *settings) *cobra.Command {
	var start, end int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print questions ordered by id",
		Long:  "Print questions ordered by id. --start and --end select the window [start, end) and must be given together.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var w *client.Window
			if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
				w = &client.Window{Start: start, End: end}
			}
			qs, err := s.client().ListQuestions(cmd.Context(), w)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), qs)
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "first index (inclusive)")
	cmd.Flags().IntVar(&end, "end", 0, "last index (exclusive)")
	cmd.MarkFlagsRequiredTogether("start", "end")
	return cmd
}

// questionFlags registers the body fields shared by create and replace.
func questionFlags(cmd *cobra.Command, q *domain.Question, id *string) {
	cmd.Flags().StringVar(id, "id", "", "question id")
	cmd.Flags().StringVar(&q.Title, "title", "", "title")
	cmd.Flags().StringVar(&q.Content, "content", "", "content")
	cmd.Flags().StringSliceVar(&q.Tags, "tag", nil, "tag (repeatable)")
}

func newQuestionsCreateCmd(s *settings) *cobra.Command {
	var (
		q  domain.Question
		id string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a question, overwriting one with the same id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			qid, err := domain.NewQuestionID(id)
			if err != nil {
				return err
			}
			q.ID = qid
			if err := s.client().CreateQuestion(cmd.Context(), q); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Question added")
			return nil
		},
	}
	questionFlags(cmd, &q, &id)
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newQuestionsReplaceCmd(s *settings) *cobra.Command {
	var (
		q  domain.Question
		id string
	)
	cmd := &cobra.Command{
		Use:   "replace ID",
		Short: "Replace an existing question",
		Long:  "Replace the question stored under ID. The body id defaults to ID; --id stores a different id under the same key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := domain.NewQuestionID(args[0])
			if err != nil {
				return err
			}
			if id == "" {
				id = args[0]
			}
			q.ID = domain.QuestionID(id)
			if err := s.client().ReplaceQuestion(cmd.Context(), target, q); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Question updated")
			return nil
		},
	}
	questionFlags(cmd, &q, &id)
	return cmd
}

func newQuestionsDeleteCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a question",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.NewQuestionID(args[0])
			if err != nil {
				return err
			}
			if err := s.client().DeleteQuestion(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Question deleted")
			return nil
		},
	}
}
