package classify

import (
	"strings"
	"testing"
)

func TestClassify_InfraSignals(t *testing.T) {
	c := New()
	out := c.Classify(map[string]string{"stdout": "step 3 failed: Connection Reset by peer"})
	if out.Category != CategoryInfra {
		t.Fatalf("category: got %s, want infra", out.Category)
	}
	if out.Confidence < 0.55 {
		t.Errorf("confidence %v below remediation threshold", out.Confidence)
	}
	if len(out.Signals) == 0 || !strings.Contains(out.Signals[0], "connection reset") {
		t.Errorf("signals: %v", out.Signals)
	}
}

func TestClassify_NoSignal_Unknown(t *testing.T) {
	c := New()
	out := c.Classify(map[string]string{"stdout": "something vague happened"})
	if out.Category != CategoryUnknown {
		t.Fatalf("category: got %s, want unknown", out.Category)
	}
	if out.Confidence != UnknownConfidence {
		t.Errorf("confidence: got %v, want %v", out.Confidence, UnknownConfidence)
	}
}

// Infra signals must pre-empt weaker matches found later in the same text.
func TestClassify_OrderingInfraWins(t *testing.T) {
	c := New()
	out := c.Classify(map[string]string{
		"stdout": "assertion failed after timeout waiting for server",
	})
	if out.Category != CategoryInfra {
		t.Fatalf("category: got %s, want infra (ordering)", out.Category)
	}
}

func TestClassify_Categories(t *testing.T) {
	c := New()
	cases := []struct {
		text string
		want string
	}{
		{"assertion failed: expected but got 42", CategoryProduct},
		{"NoSuchElementException: element not found on page", CategoryAutomation},
		{"test is flaky, passed on retry", CategoryFlaky},
		{"fixture user_42 missing record", CategoryData},
		{"env var API_KEY not set", CategoryEnv},
	}
	for _, tc := range cases {
		out := c.Classify(map[string]string{"log": tc.text})
		if out.Category != tc.want {
			t.Errorf("%q: got %s, want %s", tc.text, out.Category, tc.want)
		}
		if out.Confidence <= 0 || out.Confidence > 1 {
			t.Errorf("%q: confidence %v out of (0,1]", tc.text, out.Confidence)
		}
	}
}

func TestClassify_EmptyArtifacts(t *testing.T) {
	c := New()
	out := c.Classify(nil)
	if out.Category != CategoryUnknown {
		t.Errorf("empty artifacts: got %s, want unknown", out.Category)
	}
}
