package pdfchunk

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pdfcpuEngine is the production Engine, backed by pdfcpu. It is
// stateless; every call re-reads the source bytes.
type pdfcpuEngine struct {
	conf *model.Configuration
}

// NewEngine returns the pdfcpu-backed Engine.
func NewEngine() Engine {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &pdfcpuEngine{conf: conf}
}

func (e *pdfcpuEngine) PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), e.conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

func (e *pdfcpuEngine) ExtractRange(pdf []byte, from, to int) ([]byte, error) {
	var out bytes.Buffer
	sel := []string{fmt.Sprintf("%d-%d", from, to)}
	if from == to {
		sel = []string{fmt.Sprintf("%d", from)}
	}
	if err := api.Trim(bytes.NewReader(pdf), &out, sel, e.conf); err != nil {
		return nil, fmt.Errorf("pdfcpu trim %d-%d: %w", from, to, err)
	}
	return out.Bytes(), nil
}
