// Package posetest builds small poses for tests.
package posetest

import (
	"bytes"

	"github.com/spokentosigned/lexicon/pkg/pose"
)

// Header returns a two-component XYZC layout with five points.
func Header() *pose.Header {
	return &pose.Header{
		Version:    pose.Version,
		Dimensions: pose.Dimensions{Width: 1000, Height: 1000, Depth: 1000},
		Components: []pose.Component{
			{
				Name:   "POSE_LANDMARKS",
				Format: "XYZC",
				Points: []string{"NOSE", "LEFT_SHOULDER", "RIGHT_SHOULDER"},
				Limbs:  []pose.Limb{{From: 0, To: 1}, {From: 0, To: 2}},
				Colors: []pose.Color{{R: 255}, {G: 255}},
			},
			{
				Name:   "LEFT_HAND_LANDMARKS",
				Format: "XYZC",
				Points: []string{"WRIST", "THUMB_TIP"},
				Limbs:  []pose.Limb{{From: 0, To: 1}},
				Colors: []pose.Color{{B: 255}},
			},
		},
	}
}

// Body returns a body for h with deterministic values.
func Body(h *pose.Header, fps float32, frames int) *pose.Body {
	points, dims := h.TotalPoints(), h.Dims()
	data := make([]float32, frames*points*dims)
	for i := range data {
		data[i] = float32(i) / 2
	}
	conf := make([]float32, frames*points)
	for i := range conf {
		conf[i] = 1
	}
	b, err := pose.NewBody(fps, frames, 1, points, dims, data, conf)
	if err != nil {
		panic(err)
	}
	return b
}

// Encode returns the full pose file bytes for h and b.
func Encode(h *pose.Header, b *pose.Body) []byte {
	var buf bytes.Buffer
	if err := (&pose.Pose{Header: h, Body: b}).Write(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// EncodeHeader returns the header bytes alone.
func EncodeHeader(h *pose.Header) []byte {
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
