package embedding

// ONNXConfig describes an image feature model exported to ONNX.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	ImageSize  int
	InputName  string
	OutputName string
	CacheSize  int
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = 1024
	}
	if c.ImageSize <= 0 {
		c.ImageSize = 224
	}
	if c.InputName == "" {
		c.InputName = "pixel_values"
	}
	if c.OutputName == "" {
		c.OutputName = "image_embeds"
	}
	return c
}

// New returns the embedder named by modelPath: "mock" selects MockEmbedder, anything else
// is loaded as an ONNX model.
func New(cfg ONNXConfig) (Embedder, error) {
	if cfg.ModelPath == "mock" {
		return NewMockEmbedder(cfg.Dimensions), nil
	}
	return NewONNXEmbedder(cfg)
}
