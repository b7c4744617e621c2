package difficulty

// DisplayInfo is the presentation record for one difficulty level. It is
// derived, never stored; every facet of a session (current, initial, final)
// formats through the same table.
type DisplayInfo struct {
	Level      Level  `json:"level"`
	Canonical  string `json:"canonical"`
	Label      string `json:"label"`
	Color      string `json:"color"`
	Icon       string `json:"icon"`
	BadgeClass string `json:"badge_class"`
}

type displayRow struct {
	color string
	icon  string
	badge string
}

var displayTable = map[Level]displayRow{
	Easy:   {color: "#22c55e", icon: "seedling", badge: "badge-easy"},
	Medium: {color: "#eab308", icon: "scale", badge: "badge-medium"},
	Hard:   {color: "#f97316", icon: "flame", badge: "badge-hard"},
	Expert: {color: "#ef4444", icon: "diamond", badge: "badge-expert"},
}

// Format returns the presentation record for a level. Input outside the
// canonical scale is normalized first, so Format is total like Normalize.
func Format(level Level) DisplayInfo {
	if !level.Valid() {
		level = Normalize(level)
	}
	row := displayTable[level]
	return DisplayInfo{
		Level:      level,
		Canonical:  level.String(),
		Label:      level.Label(),
		Color:      row.color,
		Icon:       row.icon,
		BadgeClass: row.badge,
	}
}
