package cmd

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/solatis/claimscrub/internal/ruleset"
	"github.com/solatis/claimscrub/internal/rules"
)

const testdata = "../../../internal/ruleset/testdata/"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// TestWorkflow drives the CLI the way an operator would: migrate, import a
// rule set, scrub claims, detect conflicts, test a draft and promote it.
func TestWorkflow(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "cli.db") + "?_busy_timeout=5000"
	common := []string{"--db-url", url, "--log-level", "error"}
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, common...)...)
		if err != nil {
			t.Fatalf("%s: %v", strings.Join(args, " "), err)
		}
		return out
	}

	if _, err := execute(t, append([]string{"import", testdata + "rules.yaml"}, common...)...); err == nil ||
		!strings.Contains(err.Error(), "migrate up") {
		t.Fatalf("import before migrate error = %v", err)
	}

	run("migrate", "up")
	if out := run("migrate", "status"); !strings.Contains(out, "001_initial_schema.sql") || !strings.Contains(out, "applied") {
		t.Errorf("migrate status = %q", out)
	}

	if out := run("import", testdata+"rules.yaml"); !strings.Contains(out, "5 rules imported") {
		t.Errorf("import = %q", out)
	}

	out := run("scrub", testdata+"claims.jsonl", "--save")
	reports, err := ruleset.DecodeJSONL[rules.ScrubReport](strings.NewReader(out))
	if err != nil {
		t.Fatalf("decode scrub output: %v", err)
	}
	if len(reports) != 3 || !reports[0].Denied || reports[0].DeniedBy != "NCCI-001" {
		t.Errorf("reports = %+v", reports)
	}

	if out := run("conflicts"); !strings.Contains(out, "BCBS-MOD-25-LEGACY") || !strings.Contains(out, `"truncated": false`) {
		t.Errorf("conflicts = %q", out)
	}

	if out := run("test", testdata+"samples.jsonl", "--rule", "UNIT-97110"); !strings.Contains(out, `"sampleSize": 4`) {
		t.Errorf("test = %q", out)
	}

	if out := run("transition", "UNIT-97110", "testing", "--actor", "qa"); !strings.Contains(out, `"status": "testing"`) {
		t.Errorf("transition = %q", out)
	}
}

func TestImportDryRun(t *testing.T) {
	out, err := execute(t, "import", testdata+"rules.yaml", "--dry-run")
	if err != nil {
		t.Fatalf("import --dry-run error = %v", err)
	}
	if !strings.Contains(out, "5 rules valid") {
		t.Errorf("output = %q", out)
	}
	importDryRun = false
}

func TestPickSecret(t *testing.T) {
	one := map[string][]byte{"a": nil}
	two := map[string][]byte{"a": nil, "b": nil}

	tests := []struct {
		name    string
		secrets map[string][]byte
		want    string
		pick    string
		wantErr bool
	}{
		{name: "only secret", secrets: one, want: "a"},
		{name: "explicit", secrets: two, pick: "b", want: "b"},
		{name: "ambiguous", secrets: two, wantErr: true},
		{name: "none", secrets: map[string][]byte{}, wantErr: true},
		{name: "unknown", secrets: one, pick: "z", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickSecret(tt.secrets, tt.pick)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("pickSecret() = %q, %v", got, err)
			}
		})
	}
}
