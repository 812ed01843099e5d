package pixel

// Downscale8 reduces an 8-bit interleaved buffer by an integer factor.
// With smoothing each output sample is the box average of the source block;
// without it the top-left source sample is picked. Used by the
// single-resolution code path when a downsampled level is requested from an
// image that has no server-side pyramid.
func Downscale8(src []byte, srcW, srcH, channels, factor int, smoothing bool) (dst []byte, dstW, dstH int) {
	if factor <= 1 {
		return src, srcW, srcH
	}
	dstW = max(1, srcW/factor)
	dstH = max(1, srcH/factor)
	dst = make([]byte, dstW*dstH*channels)

	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			for c := 0; c < channels; c++ {
				if !smoothing {
					dst[(y*dstW+x)*channels+c] = src[(y*factor*srcW+x*factor)*channels+c]
					continue
				}
				var sum, n int
				for dy := 0; dy < factor; dy++ {
					sy := y*factor + dy
					if sy >= srcH {
						break
					}
					for dx := 0; dx < factor; dx++ {
						sx := x*factor + dx
						if sx >= srcW {
							break
						}
						sum += int(src[(sy*srcW+sx)*channels+c])
						n++
					}
				}
				if n > 0 {
					dst[(y*dstW+x)*channels+c] = byte(sum / n)
				}
			}
		}
	}
	return dst, dstW, dstH
}
