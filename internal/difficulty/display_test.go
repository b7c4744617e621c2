package difficulty

import "testing"

func TestFormat_AllLevels(t *testing.T) {
	for _, l := range Levels() {
		info := Format(l)
		if info.Level != l {
			t.Errorf("Format(%v).Level = %v", l, info.Level)
		}
		if info.Canonical != l.String() {
			t.Errorf("Format(%v).Canonical = %q, want %q", l, info.Canonical, l.String())
		}
		if info.Label != l.Label() {
			t.Errorf("Format(%v).Label = %q, want %q", l, info.Label, l.Label())
		}
		if info.Color == "" || info.Icon == "" || info.BadgeClass == "" {
			t.Errorf("Format(%v) has empty presentation fields: %+v", l, info)
		}
	}
}

func TestFormat_InvalidLevelDefaults(t *testing.T) {
	info := Format(Level(0))
	if info.Level != Medium {
		t.Errorf("Format(0).Level = %v, want Medium", info.Level)
	}
	if info.BadgeClass != "badge-medium" {
		t.Errorf("Format(0).BadgeClass = %q, want badge-medium", info.BadgeClass)
	}
}

func TestFormat_DistinctRows(t *testing.T) {
	seen := map[string]Level{}
	for _, l := range Levels() {
		info := Format(l)
		if prev, ok := seen[info.BadgeClass]; ok {
			t.Errorf("badge class %q shared by %v and %v", info.BadgeClass, prev, l)
		}
		seen[info.BadgeClass] = l
	}
}
