package chartspec

// SchemaURL is the Vega-Lite schema every spec declares.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

const (
	CompactHeight  = 200
	ExpandedHeight = 400

	fontFamily = "Inter"
)

// Theme is the fixed visual configuration shared by both modes.
type Theme struct {
	Background string     `json:"background"`
	View       ViewTheme  `json:"view"`
	Axis       AxisTheme  `json:"axis"`
	Title      TitleTheme `json:"title"`
}

type ViewTheme struct {
	Stroke string `json:"stroke"`
}

type AxisTheme struct {
	Domain          bool   `json:"domain"`
	Grid            bool   `json:"grid"`
	GridColor       string `json:"gridColor"`
	TickColor       string `json:"tickColor"`
	LabelFont       string `json:"labelFont"`
	TitleFont       string `json:"titleFont"`
	TitleFontWeight string `json:"titleFontWeight"`
}

type TitleTheme struct {
	Font       string `json:"font"`
	FontWeight int    `json:"fontWeight"`
}

// DefaultTheme returns the gallery theme: Inter typeface, transparent view border,
// light gridlines, no axis domain lines.
func DefaultTheme() Theme {
	return Theme{
		Background: "white",
		View:       ViewTheme{Stroke: "transparent"},
		Axis: AxisTheme{
			Domain:          false,
			Grid:            true,
			GridColor:       "#eee",
			TickColor:       "transparent",
			LabelFont:       fontFamily,
			TitleFont:       fontFamily,
			TitleFontWeight: "bold",
		},
		Title: TitleTheme{Font: fontFamily, FontWeight: 900},
	}
}
