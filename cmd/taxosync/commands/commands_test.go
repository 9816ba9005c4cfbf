package commands

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
)

// env is a throwaway workspace with fake upstream services.
type env struct {
	t          *testing.T
	configPath string
	annotated  []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{t: t}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /taxonomies/labels.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"tag":"en:organic"},{"tag":"en:fair-trade"},{"tag":"fr:label-rouge"}]`))
	})
	mux.HandleFunc("GET /taxonomies/countries.json", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /api/v2/search", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"code":"3017620422003","product_name":"Nutella","brands":"Ferrero","nutrition_grade_fr":"e"}]}`))
	})
	mux.HandleFunc("GET /robotoff/api/v1/questions/{code}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("code") != "3017620422003" {
			_, _ = w.Write([]byte(`{"status":"no_questions","questions":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"found","questions":[{"barcode":"3017620422003","type":"add-binary","value":"Organic","question":"Does the product have this label?","insight_id":"abc-123","insight_type":"label"}]}`))
	})
	mux.HandleFunc("POST /robotoff/api/v1/insights/annotate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		e.annotated = append(e.annotated, r.PostForm.Get("insight_id")+"="+r.PostForm.Get("annotation"))
		_, _ = w.Write([]byte(`{"status":"saved","description":"the annotation was saved"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	e.configPath = filepath.Join(dir, "taxosync.yaml")
	cfg := fmt.Sprintf(`version: "1.0"
source:
  base_url: %[1]s/taxonomies/
sync:
  retry:
    max_retries: 0
storage:
  backend: sqlite
  path: %[2]s
products:
  base_url: %[1]s/
robotoff:
  base_url: %[1]s/robotoff/
`, srv.URL, filepath.Join(dir, "taxosync.db"))
	require.NoError(t, os.WriteFile(e.configPath, []byte(cfg), 0o600))
	return e
}

// run parses args like the binary does and returns stdout.
func (e *env) run(args ...string) (string, error) {
	e.t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("taxosync"), kong.Exit(func(int) { e.t.Fatal("unexpected exit") }))
	require.NoError(e.t, err)

	kctx, err := parser.Parse(append([]string{"--config", e.configPath}, args...))
	require.NoError(e.t, err)

	var out bytes.Buffer
	err = kctx.Run(&Global{Out: &out}, &cli)
	return out.String(), err
}

func TestInitRefusesToOverwrite(t *testing.T) {
	e := newEnv(t)
	e.configPath = filepath.Join(t.TempDir(), "fresh.yaml")

	out, err := e.run("init")
	require.NoError(t, err)
	require.Contains(t, out, "initialized successfully")

	_, err = e.run("init")
	require.True(t, terrors.IsCategory(err, terrors.CategoryConfig))

	_, err = e.run("init", "--force")
	require.NoError(t, err)
}

func TestMissingConfigIsConfigError(t *testing.T) {
	e := newEnv(t)
	e.configPath = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := e.run("status")
	require.True(t, terrors.IsCategory(err, terrors.CategoryConfig))
	require.Equal(t, 7, terrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestSyncStatusAndEnablement(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("sync", "--only", "labels")
	require.NoError(t, err)
	require.Regexp(t, `labels\s+ok\s+3`, out)

	out, err = e.run("status")
	require.NoError(t, err)
	require.Regexp(t, `labels\s+true\s+3\s+\d{4}-`, out)
	require.Regexp(t, `countries\s+true\s+0\s+never`, out)

	out, err = e.run("disable", "labels")
	require.NoError(t, err)
	require.Equal(t, "labels disabled\n", out)

	out, err = e.run("sync", "--only", "labels")
	require.NoError(t, err)
	require.Contains(t, out, "nothing to refresh")

	out, err = e.run("sync", "--only", "labels", "--force")
	require.NoError(t, err)
	require.Regexp(t, `labels\s+ok\s+3`, out)

	_, err = e.run("enable", "unicorns")
	require.True(t, terrors.IsCategory(err, terrors.CategoryValidation))
}

func TestSyncFailureMapsToExitCode(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("sync", "--only", "labels,countries")
	require.Error(t, err)
	require.Regexp(t, `countries\s+server`, out)
	require.Regexp(t, `labels\s+ok\s+3`, out)
	require.Contains(t, err.Error(), "1 of 2 taxonomies failed")
	require.Equal(t, 8, terrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestStatusJSON(t *testing.T) {
	e := newEnv(t)
	out, err := e.run("status", "--json")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "["))
	require.Contains(t, out, `"name": "invalid_barcodes"`)
}

func TestHistoryCommands(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("history")
	require.NoError(t, err)
	require.Contains(t, out, "history is empty")

	_, err = e.run("history", "add", "3017620422003")
	require.NoError(t, err)
	_, err = e.run("history", "add", "0000000000001", "--title", "Apple juice")
	require.NoError(t, err)

	out, err = e.run("history", "list", "--sort", "title")
	require.NoError(t, err)
	require.Less(t, strings.Index(out, "Apple juice"), strings.Index(out, "No title"))

	out, err = e.run("history", "refresh", "--sort", "barcode")
	require.NoError(t, err)
	require.Regexp(t, `3017620422003\s+Nutella\s+Ferrero\s+e`, out)
	require.Contains(t, out, "Apple juice")

	_, err = e.run("history", "list", "--sort", "colour")
	require.True(t, terrors.IsCategory(err, terrors.CategoryValidation))

	_, err = e.run("history", "remove", "0000000000001")
	require.NoError(t, err)
	out, err = e.run("history", "list")
	require.NoError(t, err)
	require.NotContains(t, out, "Apple juice")

	_, err = e.run("history", "clear")
	require.NoError(t, err)
	out, err = e.run("history", "list")
	require.NoError(t, err)
	require.Contains(t, out, "history is empty")
}

func TestQuestionAndAnnotate(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("question", "3017620422003", "--lang", "fr")
	require.NoError(t, err)
	require.Contains(t, out, "Does the product have this label?")
	require.Contains(t, out, "abc-123")

	out, err = e.run("question", "0000000000001")
	require.NoError(t, err)
	require.Contains(t, out, "no questions")

	out, err = e.run("annotate", "abc-123", "yes")
	require.NoError(t, err)
	require.Equal(t, "saved: the annotation was saved\n", out)
	require.Equal(t, []string{"abc-123=1"}, e.annotated)

	_, err = e.run("annotate", "abc-123", "perhaps")
	require.True(t, terrors.IsCategory(err, terrors.CategoryValidation))
}
