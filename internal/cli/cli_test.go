package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-qa-backend/internal/client"
	"github.com/tbourn/go-qa-backend/internal/config"
	"github.com/tbourn/go-qa-backend/internal/domain"
	httpapi "github.com/tbourn/go-qa-backend/internal/http"
	"github.com/tbourn/go-qa-backend/internal/repo"
)

func newAPI(t *testing.T) (*httptest.Server, *repo.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := repo.NewStoreFromSeed("")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	db, err := repo.OpenSQLite(fmt.Sprintf("file:clidb_%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{Store: store, DB: db}, config.Config{
		APIBasePath:    "/",
		RateRPS:        1000,
		RateBurst:      1000,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "cli-test"},
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

// run executes the command tree with args and returns combined output.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCmd("v-test")
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestQuestionsList(t *testing.T) {
	srv, _ := newAPI(t)

	out, err := run(t, "questions", "list", "--server", srv.URL)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var qs []domain.Question
	if err := json.Unmarshal([]byte(out), &qs); err != nil || len(qs) != 3 {
		t.Fatalf("decode %q: %v", out, err)
	}

	out, err = run(t, "q", "list", "--server", srv.URL, "--start", "0", "--end", "2")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	qs = nil
	if err := json.Unmarshal([]byte(out), &qs); err != nil || len(qs) != 2 || qs[0].ID != "1" {
		t.Fatalf("window decode %q: %v", out, err)
	}

	if _, err := run(t, "questions", "list", "--server", srv.URL, "--start", "1"); err == nil {
		t.Fatalf("--start without --end should fail")
	}
}

func TestQuestionsCreateReplaceDelete(t *testing.T) {
	srv, store := newAPI(t)

	out, err := run(t, "questions", "create", "--server", srv.URL,
		"--id", "9", "--title", "T", "--content", "C", "--tag", "a", "--tag", "b")
	if err != nil || strings.TrimSpace(out) != "Question added" {
		t.Fatalf("create: %q %v", out, err)
	}
	q, err := store.GetQuestion("9")
	if err != nil || q.Title != "T" || len(q.Tags) != 2 {
		t.Fatalf("stored: %+v %v", q, err)
	}

	out, err = run(t, "questions", "replace", "9", "--server", srv.URL, "--title", "T2", "--content", "C2")
	if err != nil || strings.TrimSpace(out) != "Question updated" {
		t.Fatalf("replace: %q %v", out, err)
	}
	q, _ = store.GetQuestion("9")
	if q.ID != "9" || q.Title != "T2" || q.Tags != nil {
		t.Fatalf("replaced: %+v", q)
	}

	out, err = run(t, "questions", "rm", "9", "--server", srv.URL)
	if err != nil || strings.TrimSpace(out) != "Question deleted" {
		t.Fatalf("delete: %q %v", out, err)
	}

	_, err = run(t, "questions", "delete", "9", "--server", srv.URL)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "not_found" {
		t.Fatalf("want not_found APIError, got %v", err)
	}
}

func TestQuestionsCreate_RequiresID(t *testing.T) {
	srv, _ := newAPI(t)
	if _, err := run(t, "questions", "create", "--server", srv.URL, "--title", "x"); err == nil {
		t.Fatalf("missing --id should fail")
	}
	_, err := run(t, "questions", "create", "--server", srv.URL, "--id", "")
	if !errors.Is(err, domain.ErrEmptyQuestionID) {
		t.Fatalf("empty --id: %v", err)
	}
}

func TestAnswers_IdempotentCreateAndList(t *testing.T) {
	srv, store := newAPI(t)
	args := []string{"answers", "create", "--server", srv.URL,
		"--question-id", "1", "--content", "hi", "--idempotency-key", "k-1"}

	first, err := run(t, args...)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := strings.TrimSpace(first)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("id %q: %v", id, err)
	}

	again, err := run(t, args...)
	if err != nil || strings.TrimSpace(again) != id+" (replayed)" {
		t.Fatalf("replay: %q %v", again, err)
	}

	if _, err := run(t, "a", "create", "--server", srv.URL, "--question-id", "2", "--content", "x", "--auto-key"); err != nil {
		t.Fatalf("auto-key: %v", err)
	}
	if store.AnswerCount() != 2 {
		t.Fatalf("answers=%d", store.AnswerCount())
	}

	out, err := run(t, "answers", "list", "--server", srv.URL, "--question-id", "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var as []domain.Answer
	if err := json.Unmarshal([]byte(out), &as); err != nil || len(as) != 1 || string(as[0].ID) != id {
		t.Fatalf("list decode %q: %v", out, err)
	}

	if _, err := run(t, "answers", "create", "--server", srv.URL, "--question-id", "1",
		"--content", "x", "--auto-key", "--idempotency-key", "k"); err == nil {
		t.Fatalf("--auto-key with --idempotency-key should fail")
	}
}

func TestServerFromEnvAndConfigFile(t *testing.T) {
	srv, _ := newAPI(t)

	t.Setenv("QA_SERVER", srv.URL+"/")
	if _, err := run(t, "answers", "list"); err != nil {
		t.Fatalf("QA_SERVER: %v", err)
	}

	t.Setenv("QA_SERVER", "")
	path := filepath.Join(t.TempDir(), "qa.yaml")
	if err := os.WriteFile(path, []byte("server: "+srv.URL+"\ntimeout: 5s\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := run(t, "answers", "list", "--config", path); err != nil {
		t.Fatalf("config file: %v", err)
	}

	if _, err := run(t, "answers", "list", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing config file should fail")
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := run(t, "--version")
	if err != nil || !strings.Contains(out, "v-test") {
		t.Fatalf("version: %q %v", out, err)
	}
}
