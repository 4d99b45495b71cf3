package domain

// Processing stages, used to label failures
const (
	StageDecode   = "decode"
	StageLoad     = "load"
	StageConvolve = "convolve"
	StageSave     = "save"
	StagePublish  = "publish"
)

// ProcessedDirPrefix prefixes the per-backend output directory under the
// image folder, e.g. processed_gpu.
const ProcessedDirPrefix = "processed_"
