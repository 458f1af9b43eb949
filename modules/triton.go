package modules

import (
	"fmt"

	"github.com/okieraised/go-face3d-pipeline/utils"
	"github.com/okieraised/go-triton-client/triton_proto"
	"gorgonia.org/tensor"
)

// newFP32Input builds a request tensor for a declared model input with an explicit shape.
func newFP32Input(inputCfg *triton_proto.ModelInput, shape []int64, data []float32) *triton_proto.ModelInferRequest_InferInputTensor {
	return &triton_proto.ModelInferRequest_InferInputTensor{
		Name:     inputCfg.Name,
		Datatype: inputCfg.DataType.String()[5:],
		Shape:    shape,
		Contents: &triton_proto.InferTensorContents{
			Fp32Contents: data,
		},
	}
}

// parseInferOutputs converts the raw output payloads of a response into tensors keyed by
// output name, also returned in response order.
func parseInferOutputs(inferResp *triton_proto.ModelInferResponse) (map[string]*tensor.Dense, []*tensor.Dense, error) {
	outputs := inferResp.GetOutputs()
	if len(inferResp.RawOutputContents) < len(outputs) {
		return nil, nil, fmt.Errorf("response has %d outputs but %d raw payloads", len(outputs), len(inferResp.RawOutputContents))
	}

	byName := make(map[string]*tensor.Dense, len(outputs))
	ordered := make([]*tensor.Dense, 0, len(outputs))
	for oIdx, output := range outputs {
		outputShape := make([]int, 0, len(output.Shape))
		for _, shp := range output.Shape {
			outputShape = append(outputShape, int(shp))
		}

		var tensors *tensor.Dense
		switch output.Datatype {
		case "FP32":
			content := utils.BytesToT32[float32](inferResp.RawOutputContents[oIdx])
			tensors = tensor.New(
				tensor.Of(tensor.Float32),
				tensor.WithShape(outputShape...),
				tensor.WithBacking(content),
			)
		case "INT32":
			content := utils.BytesToT32[int32](inferResp.RawOutputContents[oIdx])
			tensors = tensor.New(
				tensor.Of(tensor.Int32),
				tensor.WithShape(outputShape...),
				tensor.WithBacking(content),
			)
		case "FP64":
			content := utils.BytesToT64[float64](inferResp.RawOutputContents[oIdx])
			tensors = tensor.New(
				tensor.Of(tensor.Float64),
				tensor.WithShape(outputShape...),
				tensor.WithBacking(content),
			)
		case "INT64":
			content := utils.BytesToT64[int64](inferResp.RawOutputContents[oIdx])
			tensors = tensor.New(
				tensor.Of(tensor.Int64),
				tensor.WithShape(outputShape...),
				tensor.WithBacking(content),
			)
		default:
			return nil, nil, fmt.Errorf("output %q has unsupported datatype %s", output.Name, output.Datatype)
		}
		byName[output.Name] = tensors
		ordered = append(ordered, tensors)
	}
	return byName, ordered, nil
}

// float32Values returns the flat values of a numeric output tensor as float32.
func float32Values(t *tensor.Dense) ([]float32, error) {
	switch t.Dtype() {
	case tensor.Float32:
		return t.Float32s(), nil
	case tensor.Int32:
		ints := t.Int32s()
		out := make([]float32, len(ints))
		for i, v := range ints {
			out[i] = float32(v)
		}
		return out, nil
	case tensor.Float64:
		return utils.Float64sToFloat32s(t.Float64s()), nil
	case tensor.Int64:
		ints := t.Int64s()
		out := make([]float32, len(ints))
		for i, v := range ints {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported output dtype %v", t.Dtype())
	}
}
