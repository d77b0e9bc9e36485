package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// testEnv is a config in a temp dir using the mock model with 4 dimensions, plus a
// directory holding two images and one non-image file.
type testEnv struct {
	dir        string
	configPath string
	images     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	images := filepath.Join(dir, "images")
	if err := os.MkdirAll(filepath.Join(images, "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"cat.jpg", "nested/dog.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(images, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	content := fmt.Sprintf(`storage:
  database_path: %s
  keyword_index_path: %s
embedding:
  model_path: mock
  dimensions: 4
ingest:
  extensions: [".jpg"]
  workers: 2
`, filepath.Join(dir, "vectors.db"), filepath.Join(dir, "ids"))
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return &testEnv{dir: dir, configPath: configPath, images: images}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("ruiji %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestIngestCommand(t *testing.T) {
	env := newTestEnv(t)
	cat := filepath.Join(env.images, "cat.jpg")
	dog := filepath.Join(env.images, "nested", "dog.jpg")

	out := env.mustRun(t, "ingest", env.images)
	for _, want := range []string{
		"[1/2] Added: " + cat,
		"[2/2] Added: " + dog,
		"Added: 2, Skipped: 0, Failed: 0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("first run missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "notes.txt") {
		t.Errorf("non-image file should be filtered:\n%s", out)
	}

	out = env.mustRun(t, "ingest", env.images)
	if !strings.Contains(out, "[1/2] Skip (already added): "+cat) || !strings.Contains(out, "Added: 0, Skipped: 2, Failed: 0") {
		t.Errorf("second run should skip everything:\n%s", out)
	}
}

func TestIngestCommand_errors(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "ingest", filepath.Join(env.dir, "missing")); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := env.run(t, "ingest"); err == nil {
		t.Error("expected error without arguments")
	}
}

func TestSearchCommand_byID(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "ingest", env.images)
	cat := filepath.Join(env.images, "cat.jpg")
	dog := filepath.Join(env.images, "nested", "dog.jpg")

	out := env.mustRun(t, "search", "--id", cat)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("want one match (the query id is excluded), got:\n%s", out)
	}
	line := regexp.MustCompile(`^(.+): (-?\d\.\d{4})$`)
	m := line.FindStringSubmatch(lines[0])
	if m == nil || m[1] != dog {
		t.Errorf("unexpected match line %q", lines[0])
	}
}

func TestSearchCommand_notFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "search", "--id", "nope.jpg")
	if err == nil || err.Error() != `"nope.jpg" was not found in DB` {
		t.Errorf("got error %v", err)
	}
}

func TestSearchCommand_requiresOneReference(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "search"); err == nil {
		t.Error("expected error without a reference")
	}
	if _, err := env.run(t, "search", "--id", "a", "--image", "b.jpg"); err == nil {
		t.Error("expected error for two references")
	}
}

func TestSearchCommand_byVectorFile(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "generate", "--count", "20", "--seed", "1")
	q := filepath.Join(env.dir, "q.json")
	env.mustRun(t, "make-query", "--dims", "4", "--out", q, "--seed", "2")

	out := env.mustRun(t, "search", "--vector-file", q, "--limit", "5")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("want 5 matches and a time line, got:\n%s", out)
	}
	match := regexp.MustCompile(`^[0-9a-f-]{36}: -?\d\.\d{6}$`)
	for _, l := range lines[:5] {
		if !match.MatchString(l) {
			t.Errorf("unexpected match line %q", l)
		}
	}
	if !regexp.MustCompile(`^time: \d+\.\d{3} sec$`).MatchString(lines[5]) {
		t.Errorf("unexpected time line %q", lines[5])
	}

	out = env.mustRun(t, "--output", "json", "search", "--vector-file", q, "--min-similarity=-1", "--limit", "100")
	var resp struct {
		Matches []struct {
			ID         string  `json:"id"`
			Similarity float32 `json:"similarity"`
		} `json:"matches"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if resp.Total != 20 || len(resp.Matches) != 20 {
		t.Errorf("threshold -1 should return every record, got total=%d matches=%d", resp.Total, len(resp.Matches))
	}
	for i := 1; i < len(resp.Matches); i++ {
		if resp.Matches[i].Similarity > resp.Matches[i-1].Similarity {
			t.Fatalf("matches not in descending similarity order at %d", i)
		}
	}
}

func TestSearchCommand_dimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	q := filepath.Join(env.dir, "q.json")
	env.mustRun(t, "make-query", "--dims", "3", "--out", q)
	if _, err := env.run(t, "search", "--vector-file", q); err == nil || !strings.Contains(err.Error(), "dimension") {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestSearchCommand_byImage(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "ingest", env.images)
	out := env.mustRun(t, "search", "--image", filepath.Join(env.images, "cat.jpg"), "--limit", "1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	// Embedding the stored image again finds itself with similarity 1.
	if len(lines) != 2 || lines[0] != filepath.Join(env.images, "cat.jpg")+": 1.000000" {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestLookupCommand(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "ingest", env.images)
	out := env.mustRun(t, "lookup", "dog")
	if strings.TrimSpace(out) != filepath.Join(env.images, "nested", "dog.jpg") {
		t.Errorf("lookup dog: got %q", out)
	}
	out = env.mustRun(t, "lookup", "--fuzzy", "1", "dug")
	if !strings.Contains(out, "dog.jpg") {
		t.Errorf("fuzzy lookup should find dog.jpg, got %q", out)
	}
	if _, err := env.run(t, "lookup", "--fuzzy", "3", "dog"); err == nil {
		t.Error("expected error for fuzziness 3")
	}
}

func TestLookupCommand_rebuildsIndex(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun(t, "ingest", env.images)
	if err := os.RemoveAll(filepath.Join(env.dir, "ids")); err != nil {
		t.Fatal(err)
	}
	out := env.mustRun(t, "lookup", "cat")
	if strings.TrimSpace(out) != filepath.Join(env.images, "cat.jpg") {
		t.Errorf("lookup after index removal: got %q", out)
	}
}

func TestGenerateAndStatusCommands(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "generate", "--count", "7")
	if !strings.Contains(out, "Added: 7, Skipped: 0, Failed: 0") {
		t.Errorf("generate output:\n%s", out)
	}

	out = env.mustRun(t, "status")
	for _, want := range []string{"records:            7", "dimension:          4", "backend:            sqlite"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}

	out = env.mustRun(t, "status", "--output", "json")
	var status statusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if status.Records != 7 || status.Dimension != 4 || status.DiskUsageBytes == nil {
		t.Errorf("status: %+v", status)
	}
}

func TestGenerateCommand_invalidCount(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "generate", "--count", "0"); err == nil {
		t.Error("expected error for zero count")
	}
}

func TestMakeQueryCommand_stdout(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "make-query", "--dims", "8")
	var vec []float32
	if err := json.Unmarshal([]byte(out), &vec); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(vec) != 8 {
		t.Errorf("len = %d, want 8", len(vec))
	}
}

func TestVersionCommand(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun(t, "version")
	if !strings.HasPrefix(out, "ruiji version test\n") {
		t.Errorf("got %q", out)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.run(t, "--output", "yaml", "status"); err == nil {
		t.Error("expected error for unknown output format")
	}
}
