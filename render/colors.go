package render

import "image/color"

var (
	// classColors is the palette used to tell tracked objects apart, the
	// same twenty distinct colors Ultralytics uses for classes
	classColors = []color.RGBA{
		hex(0xFF3838), hex(0xFF701F), hex(0xFFB21D), hex(0xCFD231), hex(0x48F90A),
		hex(0x1A9334), hex(0x00D4BB), hex(0x00C2FF), hex(0x344593), hex(0x6473FF),
		hex(0x0018EC), hex(0x8438FF), hex(0x520085), hex(0xFF95C8), hex(0xFF37C7),
		hex(0xFF9D97), hex(0x2C99A8), hex(0x3DDB86), hex(0xCB38FF), hex(0x92CC17),
	}

	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}
	Pink   = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// ColorFor returns the palette color for an index, such as a track ID or
// class number
func ColorFor(index int) color.RGBA {
	if index < 0 {
		index = -index
	}

	return classColors[index%len(classColors)]
}

// hex converts a 0xRRGGBB value to an opaque color
func hex(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
