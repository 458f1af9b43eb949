package modules

import (
	"os"
	"testing"

	"github.com/okieraised/go-face3d-pipeline/config"
	gotritonclient "github.com/okieraised/go-triton-client"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

const tritonTestURLEnv = "TRITON_TEST_URL"

// newTestTritonClient connects to the Triton server named by TRITON_TEST_URL and skips the test
// when it is not set.
func newTestTritonClient(t *testing.T) *gotritonclient.TritonGRPCClient {
	t.Helper()
	url := os.Getenv(tritonTestURLEnv)
	if url == "" {
		t.Skipf("%s not set", tritonTestURLEnv)
	}

	triton, err := gotritonclient.NewTritonGRPCClient(
		url,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{PermitWithoutStream: true}),
	)
	require.NoError(t, err)
	return triton
}

// patternImage returns a deterministic 3-channel image with no flat regions.
func patternImage(width, height int) gocv.Mat {
	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				img.SetUCharAt(y, x*3+c, uint8((x*7+y*13+c*31)%256))
			}
		}
	}
	return img
}

// syntheticLandmarks places the reference face in the image plane as s*X + t, bottom-up.
func syntheticLandmarks(t *testing.T, scale, tx, ty float64) *config.LandmarkSet {
	t.Helper()
	ref := config.DefaultReferenceLandmarks3D().Float64s()
	flat := make([]float64, 0, 10)
	for i := 0; i < 5; i++ {
		flat = append(flat, scale*ref[i*3]+tx, scale*ref[i*3+1]+ty)
	}
	lm, err := config.NewLandmarkSet(flat, config.CartesianConvention)
	require.NoError(t, err)
	return lm
}
