package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physio-outreach/internal/model"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	chdir(t, t.TempDir())

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	day := func(d int) string {
		return time.Now().UTC().AddDate(0, 0, -d).Format(time.RFC3339)
	}
	body := `{
  "patients": [
    {"id": "6f1c2d9e-2b1a-4a55-9d8e-0c2b7b1e9a01", "first_name": "Anna", "last_name": "Bianchi", "phone": "+39 02 123", "status": "active"},
    {"id": "7a2d3e0f-3c2b-4b66-8e9f-1d3c8c2f0b02", "first_name": "Paolo", "last_name": "Verdi", "phone": "+39 06 456", "status": "active"}
  ],
  "appointments": [
    {"id": "0b7e4a1c-55d2-4f0e-8a3b-6c1d2e3f4a5b", "patient_id": "6f1c2d9e-2b1a-4a55-9d8e-0c2b7b1e9a01", "scheduled_at": "` + day(40) + `", "status": "no_show"},
    {"id": "1c8f5b2d-66e3-4a1f-9b4c-7d2e3f4a5b6c", "patient_id": "7a2d3e0f-3c2b-4b66-8e9f-1d3c8c2f0b02", "scheduled_at": "` + day(40) + `", "status": "no_show"}
  ],
  "evaluation_notes": [
    {"id": "2d9a6c3e-77f4-4b2a-8c5d-8e3f4a5b6c7d", "patient_id": "6f1c2d9e-2b1a-4a55-9d8e-0c2b7b1e9a01", "recorded_at": "` + day(10) + `", "description": "Dolore lombare al mattino. Netto miglioramento dopo la terapia."},
    {"id": "3e0b7d4f-88a5-4c3b-9d6e-9f4a5b6c7d8e", "patient_id": "7a2d3e0f-3c2b-4b66-8e9f-1d3c8c2f0b02", "recorded_at": "` + day(10) + `", "description": "Dolore lombare. Nessun miglioramento rilevato."}
  ],
  "treatment_diary": []
}`
	path := filepath.Join(t.TempDir(), "fixtures.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunWithFixtures(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := execute(t, "", "run", "--fixtures", fixtures)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var result model.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &result))
	assert.Equal(t, "Anna", result.FirstName)
	assert.Equal(t, "+39 02 123", result.Phone)
}

func TestRunWithFixturesDetails(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := execute(t, "", "run", "--fixtures", fixtures, "--details")
	require.NoError(t, err)

	var c model.Candidate
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &c))
	assert.Equal(t, []string{"Netto miglioramento dopo la terapia."}, c.Evidence)
}

func TestRunWindowOverride(t *testing.T) {
	fixtures := writeFixtures(t)

	out, err := execute(t, "", "run", "--fixtures", fixtures, "--window", "480h")
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(out))
}

func TestRunRejectsNegativeWindow(t *testing.T) {
	fixtures := writeFixtures(t)

	_, err := execute(t, "", "run", "--fixtures", fixtures, "--window", "-1h")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	out, err := execute(t, "Mal di schiena persistente.\nNessun miglioramento.\nOggi sta meglio.", "classify")
	require.NoError(t, err)

	var got classification
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Topic)
	assert.Equal(t, []string{"Nessun miglioramento.", "Oggi sta meglio."}, got.Candidates)
	assert.Equal(t, []string{"Oggi sta meglio."}, got.Confirmed)
	assert.Nil(t, got.Secondary)
}

func TestClassifyLLMNeedsConfig(t *testing.T) {
	_, err := execute(t, "Dolore al ginocchio.", "classify", "--llm")
	assert.ErrorContains(t, err, "--llm needs")
}

func TestToken(t *testing.T) {
	t.Setenv("OUTREACH_AUTH_JWT_SECRET", "secret")
	t.Setenv("OUTREACH_AUTH_ISSUER", "physio-outreach")

	out, err := execute(t, "", "token", "--subject", "reception", "--ttl", "1h")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "reception", claims.Subject)
	assert.Equal(t, "physio-outreach", claims.Issuer)
}

func TestTokenNeedsSecret(t *testing.T) {
	_, err := execute(t, "", "token")
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestMigrateList(t *testing.T) {
	out, err := execute(t, "", "migrate", "list")
	require.NoError(t, err)
	assert.Equal(t, "001_outreach_schema.up.sql\n", out)
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
