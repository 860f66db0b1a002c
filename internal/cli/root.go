// Package cli builds the qa command tree: "serve" runs the HTTP service and
// the "questions" and "answers" subcommands call a running instance through
// internal/client.
//
// Client settings resolve from flags, then QA_* environment variables, then
// an optional config file:
//
//	--server   QA_SERVER   base URL of the API (default http://localhost:8080)
//	--timeout  QA_TIMEOUT  per-request timeout
//	--retries  QA_RETRIES  retries on transport errors, 429 and 5xx
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tbourn/go-qa-backend/internal/client"
	"github.com/tbourn/go-qa-backend/internal/sysutil"
)

const defaultServer = "http://localhost:8080"

// settings is the per-command-tree configuration source.
type settings struct {
	v       *viper.Viper
	cfgFile string
}

// NewRootCmd returns the qa command tree. version is reported by --version and
// attached to traces by serve.
func NewRootCmd(version string) *cobra.Command {
	s := &settings{v: viper.New()}

	root := &cobra.Command{
		Use:           "qa",
		Short:         "In-memory questions and answers service",
		Long:          "qa serves the questions/answers HTTP API and doubles as a client for it.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.String("server", defaultServer, "base URL of the API, including any base path")
	pf.Duration("timeout", 10*time.Second, "per-request timeout")
	pf.Int("retries", 0, "retries on transport errors, 429 and 5xx")
	for _, name := range []string{"server", "timeout", "retries"} {
		_ = s.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newServeCmd(s, version),
		newQuestionsCmd(s),
		newAnswersCmd(s),
	)
	return root
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// init reads the environment and, when given, the config file.
func (s *settings) init() error {
	s.v.SetEnvPrefix("QA")
	s.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	s.v.AutomaticEnv()

	if s.cfgFile == "" {
		return nil
	}
	s.v.SetConfigFile(s.cfgFile)
	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", s.cfgFile, err)
	}
	return nil
}

func (s *settings) server() string {
	return strings.TrimRight(sysutil.FirstNonEmpty(s.v.GetString("server"), defaultServer), "/")
}

func (s *settings) client() *client.Client {
	opts := []client.Option{}
	if d := s.v.GetDuration("timeout"); d > 0 {
		opts = append(opts, client.WithTimeout(d))
	}
	if n := s.v.GetInt("retries"); n > 0 {
		opts = append(opts, client.WithRetries(n))
	}
	return client.New(s.server(), opts...)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
