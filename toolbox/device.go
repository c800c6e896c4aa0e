package toolbox

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"
)

// Device records what the host can run.  It is resolved once, by the caller,
// and handed to whatever needs to pick a kernel.
type Device struct {
	Name string
	AVX2 bool
	FMA3 bool
}

// CPU is the portable device; it selects the pure-Go kernels.
var CPU = Device{Name: "cpu"}

// DetectDevice queries the processor.
func DetectDevice() Device {
	d := Device{
		Name: cpuid.CPU.BrandName,
		AVX2: cpuid.CPU.Supports(cpuid.AVX2),
		FMA3: cpuid.CPU.Supports(cpuid.FMA3),
	}
	if d.Name == "" {
		d.Name = CPU.Name
	}
	return d
}

// Dot returns the dot-product kernel for the device.  The assembly kernel is
// only present in builds with the mixasm tag.
func (d Device) Dot() DotFunc {
	if d.AVX2 && d.FMA3 && weightedSumAsm != nil {
		return weightedSumAsm
	}
	return denseDot2Unrolled
}

func (d Device) String() string {
	return fmt.Sprintf("%s (avx2=%v fma3=%v)", d.Name, d.AVX2, d.FMA3)
}
