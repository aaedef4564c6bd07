package cohort

import "testing"

func TestParse_ValidCountries(t *testing.T) {
	c, err := Parse("KR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != KR {
		t.Errorf("expected KR, got %s", c)
	}

	c, err = Parse("JP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != JP {
		t.Errorf("expected JP, got %s", c)
	}
}

func TestParse_RejectsUnknownCountries(t *testing.T) {
	for _, input := range []string{"", "US", "kr", "jp", "KOREA"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("expected error for %q, got none", input)
		}
	}
}

func TestOpposite(t *testing.T) {
	if KR.Opposite() != JP {
		t.Errorf("opposite of KR should be JP, got %s", KR.Opposite())
	}
	if JP.Opposite() != KR {
		t.Errorf("opposite of JP should be KR, got %s", JP.Opposite())
	}
}
