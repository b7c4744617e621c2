package difficulty

import "testing"

func TestNormalize_Total(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  Level
	}{
		{"nil", nil, Medium},
		{"ordinal 1", 1, Easy},
		{"ordinal 2", 2, Medium},
		{"ordinal 3", 3, Hard},
		{"ordinal 4", 4, Expert},
		{"ordinal 0", 0, Medium},
		{"ordinal 5", 5, Medium},
		{"negative ordinal", -3, Medium},
		{"json float", float64(3), Hard},
		{"int64", int64(4), Expert},
		{"canonical easy", "easy", Easy},
		{"canonical expert", "expert", Expert},
		{"uppercase", "HARD", Hard},
		{"padded", "  medium  ", Medium},
		{"legacy beginner", "beginner", Easy},
		{"legacy novice", "novice", Easy},
		{"legacy intermediate", "intermediate", Medium},
		{"legacy advanced", "advanced", Hard},
		{"legacy master", "master", Expert},
		{"numeric string", "3", Hard},
		{"numeric string out of range", "9", Medium},
		{"empty string", "", Medium},
		{"garbage", "bananas", Medium},
		{"already a level", Hard, Hard},
		{"invalid level value", Level(42), Medium},
		{"unsupported type", struct{}{}, Medium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []any{nil, 1, 2, 3, 4, 0, 99, "easy", "advanced", "garbage", "", "4"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %v: first %v, second %v", in, once, twice)
		}
	}
}

func TestLevel_String_RoundTrip(t *testing.T) {
	for _, l := range Levels() {
		if got := NormalizeString(l.String()); got != l {
			t.Errorf("NormalizeString(%q) = %v, want %v", l.String(), got, l)
		}
	}
}

func TestLevel_Label(t *testing.T) {
	want := map[Level]string{
		Easy:   "Easy",
		Medium: "Medium",
		Hard:   "Hard",
		Expert: "Expert",
	}
	for l, label := range want {
		if got := l.Label(); got != label {
			t.Errorf("Level(%d).Label() = %q, want %q", l, got, label)
		}
	}
	if got := Level(0).Label(); got != "Medium" {
		t.Errorf("invalid level label = %q, want default Medium", got)
	}
}

func TestLevel_JSON(t *testing.T) {
	data, err := Hard.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(data) != `"hard"` {
		t.Errorf("MarshalJSON() = %s, want %q", data, `"hard"`)
	}

	var l Level
	if err := l.UnmarshalJSON([]byte(`"advanced"`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if l != Hard {
		t.Errorf("UnmarshalJSON(advanced) = %v, want Hard", l)
	}

	if err := l.UnmarshalJSON([]byte(`2`)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if l != Medium {
		t.Errorf("UnmarshalJSON(2) = %v, want Medium", l)
	}
}
