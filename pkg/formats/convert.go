package formats

// NV12ToYUYV converts a planar NV12 image to packed YUYV 4:2:2, repeating
// each chroma row for the two luma rows it covers. It returns the number of
// bytes written, or 0 if either buffer is too small.
func NV12ToYUYV(dst, src []byte, width, height int) int {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return 0
	}
	lumaSize := width * height
	if len(src) < lumaSize*3/2 || len(dst) < lumaSize*2 {
		return 0
	}
	y := src[:lumaSize]
	uv := src[lumaSize:]
	for row := 0; row < height; row++ {
		yr := y[row*width : (row+1)*width]
		cr := uv[(row/2)*width : (row/2+1)*width]
		out := dst[row*width*2 : (row+1)*width*2]
		for col := 0; col < width; col += 2 {
			o := col * 2
			out[o] = yr[col]
			out[o+1] = cr[col]
			out[o+2] = yr[col+1]
			out[o+3] = cr[col+1]
		}
	}
	return lumaSize * 2
}
