package pipeline

// defaultColors is the 16-entry table used to synthesize colors for label
// classes created programmatically (e.g., on label import).  Classes beyond
// the table wrap around.
var defaultColors = []Color{
	{255, 225, 25},  // yellow
	{0, 130, 200},   // blue
	{230, 25, 75},   // red
	{70, 240, 240},  // cyan
	{60, 180, 75},   // green
	{250, 190, 190}, // pink
	{170, 110, 40},  // brown
	{145, 30, 180},  // purple
	{0, 128, 128},   // teal
	{245, 130, 48},  // orange
	{240, 50, 230},  // magenta
	{210, 245, 60},  // lime
	{255, 215, 180}, // apricot
	{230, 190, 255}, // lavender
	{128, 128, 0},   // olive
	{128, 128, 128}, // grey
}

func defaultColor(classID int) Color {
	return defaultColors[(classID-1)%len(defaultColors)]
}
