//go:build js && wasm

package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"syscall/js"

	ss "starstack/pkg/starstack"
)

var lastResult *ss.Result

func main() {
	js.Global().Set("detectFITS", js.FuncOf(detectFITS))
	js.Global().Set("stackFITS", js.FuncOf(stackFITS))
	js.Global().Set("renderOverlay", js.FuncOf(renderOverlay))
	select {} // block forever
}

type jsOptions struct {
	debayer bool
	params  *ss.Params
}

// parseOptions reads {debayer, threshold, similarity, indexed, hotpixel}.
func parseOptions(v js.Value) jsOptions {
	opts := jsOptions{params: ss.DefaultParams()}
	if v.Type() != js.TypeObject {
		return opts
	}
	if b := v.Get("debayer"); b.Type() == js.TypeBoolean {
		opts.debayer = b.Bool()
	}
	if f := v.Get("threshold"); f.Type() == js.TypeNumber {
		opts.params.StarThreshold = f.Float()
	}
	if f := v.Get("similarity"); f.Type() == js.TypeNumber {
		opts.params.TriangleSimilarity = f.Float()
	}
	if b := v.Get("indexed"); b.Type() == js.TypeBoolean {
		opts.params.IndexedMatching = b.Bool()
	}
	if b := v.Get("hotpixel"); b.Type() == js.TypeBoolean {
		opts.params.HotpixelFilter = b.Bool()
	}
	return opts
}

func frameFromJS(v js.Value, debayer bool) (*image.Gray, error) {
	fileBytes := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(fileBytes, v)

	fits, err := ss.ReadFitsFromBytes(fileBytes)
	if err != nil {
		return nil, err
	}
	if debayer || fits.Metadata.BayerPattern() == "RGGB" {
		return fits.GrayDebayered(), nil
	}
	return fits.Gray(), nil
}

func detectFITS(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: detectFITS(fileBytes, options)")
	}
	var optArg js.Value
	if len(args) >= 2 {
		optArg = args[1]
	}
	opts := parseOptions(optArg)
	if err := opts.params.Validate(); err != nil {
		return errorResult("invalid options: " + err.Error())
	}

	img, err := frameFromJS(args[0], opts.debayer)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}

	m := ss.MatFromGray(img)
	defer m.Close()
	det, err := ss.DetectStars(context.Background(), m, 0, opts.params)
	if err != nil {
		return errorResult("Detection error: " + err.Error())
	}

	b := img.Bounds()
	coverage := ss.AnalyzeCoverage(det.Catalog, b.Dx(), b.Dy())

	jsStars := make([]interface{}, det.Catalog.Len())
	for i, s := range det.Catalog.Stars {
		jsStars[i] = map[string]interface{}{
			"id":         s.ID,
			"x":          s.Position.X,
			"y":          s.Position.Y,
			"brightness": s.Brightness,
			"area":       s.Area,
		}
	}

	return js.ValueOf(map[string]interface{}{
		"width":     b.Dx(),
		"height":    b.Dy(),
		"quality":   ss.QualityScore(m, det.Catalog),
		"hotpixels": det.HotpixelCount,
		"stars":     jsStars,
		"field":     coverageToJS(coverage),
	})
}

func stackFITS(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return errorResult("usage: stackFITS([fileBytes, ...], options)")
	}
	var optArg js.Value
	if len(args) >= 2 {
		optArg = args[1]
	}
	opts := parseOptions(optArg)

	n := args[0].Get("length").Int()
	frames := make([]*image.Gray, n)
	for i := 0; i < n; i++ {
		img, err := frameFromJS(args[0].Index(i), opts.debayer)
		if err != nil {
			return errorResult("FITS parse error: " + err.Error())
		}
		frames[i] = img
	}

	res, err := ss.Stack(context.Background(), frames, opts.params, nil)
	if err != nil {
		return errorResult("Stacking error: " + err.Error())
	}
	lastResult = res

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Composite); err != nil {
		return errorResult("Encoding error: " + err.Error())
	}

	jsFrames := make([]interface{}, len(res.Frames))
	for i, f := range res.Frames {
		jf := map[string]interface{}{
			"index":     f.Index,
			"status":    f.Status.String(),
			"stars":     f.Stars,
			"quality":   f.Quality,
			"triangles": f.Triangles,
			"matches":   f.Matches,
		}
		if f.Status == ss.FrameAligned {
			t := f.Transform
			jf["model"] = t.Model.String()
			jf["dx"] = t.Translation.X
			jf["dy"] = t.Translation.Y
			jf["rotation"] = t.Rotation
			jf["scale"] = t.Scale
			jf["alignmentQuality"] = t.Quality
			jf["correspondences"] = t.Correspondences
		}
		if f.Err != nil {
			jf["error"] = f.Err.Error()
		}
		jsFrames[i] = jf
	}

	return js.ValueOf(map[string]interface{}{
		"reference": res.Reference,
		"aligned":   res.Aligned,
		"rejected":  res.Rejected,
		"frames":    jsFrames,
		"composite": bytesToJS(buf.Bytes()),
	})
}

func renderOverlay(this js.Value, args []js.Value) interface{} {
	if lastResult == nil {
		return js.Null()
	}

	jpegBytes, err := ss.RenderOverlayBytes(lastResult)
	if err != nil {
		return js.Null()
	}
	return bytesToJS(jpegBytes)
}

func coverageToJS(c *ss.FieldCoverage) map[string]interface{} {
	zones := []ss.ZonePosition{
		ss.ZoneTopLeft, ss.ZoneTop, ss.ZoneTopRight,
		ss.ZoneLeft, ss.ZoneCenter, ss.ZoneRight,
		ss.ZoneBottomLeft, ss.ZoneBottom, ss.ZoneBottomRight,
	}
	jsZones := make([]interface{}, len(zones))
	for i, pos := range zones {
		z := c.Zones[pos]
		jsZones[i] = map[string]interface{}{
			"label":          z.Label,
			"starCount":      z.StarCount,
			"meanBrightness": z.MeanBrightness,
		}
	}
	return map[string]interface{}{
		"zones":         jsZones,
		"occupiedZones": c.OccupiedZones,
		"balanced":      c.Balanced,
	}
}

func bytesToJS(b []byte) js.Value {
	uint8Array := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(uint8Array, b)
	return uint8Array
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
