/*
go-alpr reads license plates from a live camera feed.  Each accepted frame is
scaled into the input of a plate detector, every plate found is cropped,
thresholded and passed to a character detector, and the plates and their
characters are tracked across frames for an annotated preview.

Frames arriving while a frame is still being processed are dropped, so at
most one inference is ever in flight.

The classifier backends live in their own packages and register themselves
on import, tflite and opencv are available on any platform and rknn runs on
the Rockchip NPU when built with -tags rknn.

See example/detector for a complete program.
*/
package alpr
