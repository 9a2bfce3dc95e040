package builder

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/notargets/gocca"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// AlignmentType specifies memory alignment requirements
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
	WarpAlign      AlignmentType = 128
	PageAlign      AlignmentType = 4096
)

// MaxInnerLoop is the largest @inner loop CUDA and most OpenCL devices run
const MaxInnerLoop = 1024

// ArraySpec defines user requirements for array allocation
type ArraySpec struct {
	Name      string
	Size      int64
	Alignment AlignmentType
	DataType  DataType
}

// arrayMetadata tracks information about allocated arrays
type arrayMetadata struct {
	spec     ArraySpec
	dataType DataType
}

// Builder manages code generation and execution for partition-parallel
// kernels. A partition is a run of at most KpartMax independent work
// items; kernels loop @outer over partitions and @inner over items.
type Builder struct {
	// Partition configuration
	NumPartitions int
	K             []int
	KpartMax      int // Maximum K value across all partitions

	// Type configuration
	FloatType DataType
	IntType   DataType

	// Array tracking for macro generation
	allocatedArrays []string
	arrayMetadata   map[string]arrayMetadata

	// Generated code
	kernelPreamble string

	// Runtime resources
	device       *gocca.OCCADevice
	kernels      map[string]*gocca.OCCAKernel
	pooledMemory map[string]*gocca.OCCAMemory
}

// Config holds configuration for creating a Builder
type Config struct {
	K         []int
	FloatType DataType
	IntType   DataType
}

// NewBuilder creates a new Builder instance
func NewBuilder(device *gocca.OCCADevice, cfg Config) *Builder {
	if device == nil {
		panic("device cannot be nil")
	}
	if len(cfg.K) == 0 {
		panic("K array cannot be empty")
	}

	// Compute KpartMax
	kpartMax := 0
	for _, k := range cfg.K {
		if k > kpartMax {
			kpartMax = k
		}
	}

	mode := device.Mode()
	if (mode == "CUDA" || mode == "OpenCL") && kpartMax > MaxInnerLoop {
		panic(fmt.Sprintf("%s @inner limit exceeded: KpartMax=%d but the limit is %d. Reduce partition sizes.",
			mode, kpartMax, MaxInnerLoop))
	}

	// Set defaults
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}

	kb := &Builder{
		NumPartitions:   len(cfg.K),
		K:               make([]int, len(cfg.K)),
		KpartMax:        kpartMax,
		FloatType:       floatType,
		IntType:         intType,
		allocatedArrays: []string{},
		arrayMetadata:   make(map[string]arrayMetadata),
		device:          device,
		kernels:         make(map[string]*gocca.OCCAKernel),
		pooledMemory:    make(map[string]*gocca.OCCAMemory),
	}

	copy(kb.K, cfg.K)

	// Allocate K array on device in the configured int width
	if kb.IntType == INT32 {
		k32 := make([]int32, len(kb.K))
		for i, k := range kb.K {
			k32[i] = int32(k)
		}
		kb.pooledMemory["K"] = device.Malloc(int64(len(k32)*4), unsafe.Pointer(&k32[0]), nil)
	} else {
		k64 := make([]int64, len(kb.K))
		for i, k := range kb.K {
			k64[i] = int64(k)
		}
		kb.pooledMemory["K"] = device.Malloc(int64(len(k64)*8), unsafe.Pointer(&k64[0]), nil)
	}

	return kb
}

// Free releases all resources
func (kb *Builder) Free() {
	for _, kernel := range kb.kernels {
		kernel.Free()
	}
	for _, mem := range kb.pooledMemory {
		mem.Free()
	}
}

// AllocateArrays allocates device memory with automatic offset calculation
func (kb *Builder) AllocateArrays(specs []ArraySpec) error {
	for _, spec := range specs {
		if err := kb.allocateSingleArray(spec); err != nil {
			return fmt.Errorf("failed to allocate %s: %w", spec.Name, err)
		}
	}
	return nil
}

// allocateSingleArray handles allocation of a single partitioned array
func (kb *Builder) allocateSingleArray(spec ArraySpec) error {
	if _, exists := kb.arrayMetadata[spec.Name]; exists {
		return fmt.Errorf("array %s already allocated", spec.Name)
	}
	if kb.getTotalElements() == 0 {
		return fmt.Errorf("no elements to allocate")
	}

	offsets, totalSize := kb.calculateAlignedOffsetsAndSize(spec)

	globalMem := kb.device.Malloc(totalSize, nil, nil)
	kb.pooledMemory[spec.Name+"_global"] = globalMem

	intSize := kb.GetIntSize()
	offsetsSize := int64(len(offsets) * intSize)

	var offsetMem *gocca.OCCAMemory
	if intSize == 4 {
		offsets32 := make([]int32, len(offsets))
		for i, v := range offsets {
			offsets32[i] = int32(v)
		}
		offsetMem = kb.device.Malloc(offsetsSize, unsafe.Pointer(&offsets32[0]), nil)
	} else {
		offsetMem = kb.device.Malloc(offsetsSize, unsafe.Pointer(&offsets[0]), nil)
	}
	kb.pooledMemory[spec.Name+"_offsets"] = offsetMem

	kb.allocatedArrays = append(kb.allocatedArrays, spec.Name)
	kb.arrayMetadata[spec.Name] = arrayMetadata{
		spec:     spec,
		dataType: spec.DataType,
	}

	return nil
}

// AllocateShared uploads an unpartitioned read-only array that every
// partition indexes into. It is passed to kernels as a plain pointer.
func (kb *Builder) AllocateShared(name string, data []float64) error {
	if len(data) == 0 {
		return fmt.Errorf("shared array %s is empty", name)
	}
	if _, exists := kb.pooledMemory[name]; exists {
		return fmt.Errorf("shared array %s already allocated", name)
	}
	kb.pooledMemory[name] = kb.device.Malloc(int64(len(data)*8), unsafe.Pointer(&data[0]), nil)
	return nil
}

// calculateAlignedOffsetsAndSize computes partition offsets with alignment
func (kb *Builder) calculateAlignedOffsetsAndSize(spec ArraySpec) ([]int64, int64) {
	offsets := make([]int64, kb.NumPartitions+1)
	totalElements := kb.getTotalElements()
	bytesPerElement := spec.Size / int64(totalElements)

	valueSize := int64(sizeOfType(spec.DataType))
	valuesPerElement := bytesPerElement / valueSize

	alignment := int64(spec.Alignment)
	if alignment == 0 {
		alignment = int64(NoAlignment)
	}
	currentByteOffset := int64(0)

	for i := 0; i < kb.NumPartitions; i++ {
		if currentByteOffset%alignment != 0 {
			currentByteOffset = ((currentByteOffset + alignment - 1) / alignment) * alignment
		}

		// Offsets are in units of values so that ptr + offset works in kernels
		offsets[i] = currentByteOffset / valueSize

		partitionValues := int64(kb.K[i]) * valuesPerElement
		currentByteOffset += partitionValues * valueSize
	}

	if currentByteOffset%alignment != 0 {
		currentByteOffset = ((currentByteOffset + alignment - 1) / alignment) * alignment
	}
	offsets[kb.NumPartitions] = currentByteOffset / valueSize

	return offsets, currentByteOffset
}

func sizeOfType(t DataType) int {
	switch t {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// getTotalElements returns sum of all K values
func (kb *Builder) getTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GeneratePreamble generates the kernel preamble with types, sizes and
// partition access macros
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder
	sb.WriteString(kb.generateTypeDefinitions())
	sb.WriteString(kb.generatePartitionMacros())
	kb.kernelPreamble = sb.String()
	return kb.kernelPreamble
}

// generateTypeDefinitions creates type definitions based on precision settings
func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder

	floatTypeStr := "double"
	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatTypeStr = "float"
		floatSuffix = "f"
	}

	intTypeStr := "long"
	if kb.IntType == INT32 {
		intTypeStr = "int"
	}

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", floatTypeStr))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", intTypeStr))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString("\n")

	return sb.String()
}

// generatePartitionMacros creates macros for partition data access
func (kb *Builder) generatePartitionMacros() string {
	var sb strings.Builder

	sb.WriteString("// Partition access macros\n")
	for _, arrayName := range kb.allocatedArrays {
		sb.WriteString(fmt.Sprintf("#define %s_PART(part) (%s_global + %s_offsets[part])\n",
			arrayName, arrayName, arrayName))
	}
	if len(kb.allocatedArrays) > 0 {
		sb.WriteString("\n")
	}

	return sb.String()
}

// BuildKernel compiles and registers a kernel with the program
func (kb *Builder) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	if kb.kernelPreamble == "" {
		kb.GeneratePreamble()
	}

	fullSource := kb.kernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error

	if kb.device.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kb.device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kb.device.BuildKernelFromString(fullSource, kernelName, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}

	if kernel != nil {
		kb.kernels[kernelName] = kernel
		return kernel, nil
	}

	return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
}

// RunKernel executes a registered kernel with the given arguments
func (kb *Builder) RunKernel(name string, args ...interface{}) error {
	kernel, exists := kb.kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not found", name)
	}
	return kernel.RunWithArgs(kb.expandKernelArgs(args)...)
}

// expandKernelArgs transforms array names to kernel parameter names:
// partitioned arrays become (_global, _offsets), shared arrays their
// memory handle
func (kb *Builder) expandKernelArgs(args []interface{}) []interface{} {
	expanded := []interface{}{kb.pooledMemory["K"]}

	for _, arg := range args {
		name, ok := arg.(string)
		if !ok {
			expanded = append(expanded, arg)
			continue
		}
		globalMem, hasGlobal := kb.pooledMemory[name+"_global"]
		offsetMem, hasOffset := kb.pooledMemory[name+"_offsets"]
		switch {
		case hasGlobal && hasOffset:
			expanded = append(expanded, globalMem, offsetMem)
		case kb.pooledMemory[name] != nil:
			expanded = append(expanded, kb.pooledMemory[name])
		default:
			expanded = append(expanded, arg)
		}
	}

	return expanded
}

// GetMemory returns the device memory handle for an array
func (kb *Builder) GetMemory(arrayName string) *gocca.OCCAMemory {
	if mem, exists := kb.pooledMemory[arrayName+"_global"]; exists {
		return mem
	}
	return nil
}

// GetIntSize returns the size of int type in bytes
func (kb *Builder) GetIntSize() int {
	if kb.IntType == INT32 {
		return 4
	}
	return 8
}

// GetArrayLogicalSize returns the number of logical elements in an array
func (kb *Builder) GetArrayLogicalSize(name string) (int, error) {
	metadata, exists := kb.arrayMetadata[name]
	if !exists {
		return 0, fmt.Errorf("array %s not found", name)
	}
	return int(metadata.spec.Size / int64(sizeOfType(metadata.dataType))), nil
}

// readOffsets copies an array's partition offsets back from the device
func (kb *Builder) readOffsets(name string) ([]int64, error) {
	offsetsMem := kb.pooledMemory[name+"_offsets"]
	if offsetsMem == nil {
		return nil, fmt.Errorf("offsets for %s not found", name)
	}
	numOffsets := kb.NumPartitions + 1
	offsets := make([]int64, numOffsets)
	if kb.GetIntSize() == 4 {
		offsets32 := make([]int32, numOffsets)
		offsetsMem.CopyTo(unsafe.Pointer(&offsets32[0]), int64(numOffsets*4))
		for i, v := range offsets32 {
			offsets[i] = int64(v)
		}
	} else {
		offsetsMem.CopyTo(unsafe.Pointer(&offsets[0]), int64(numOffsets*8))
	}
	return offsets, nil
}

func (kb *Builder) checkType(name string, requested DataType) (arrayMetadata, error) {
	metadata, exists := kb.arrayMetadata[name]
	if !exists {
		return metadata, fmt.Errorf("array %s not found", name)
	}
	if requested != metadata.dataType {
		return metadata, fmt.Errorf("type mismatch: array is %v, requested %v", metadata.dataType, requested)
	}
	return metadata, nil
}

// CopyArrayFromHost writes host data into a partitioned array, partition
// by partition, honouring alignment padding
func CopyArrayFromHost[T any](kb *Builder, name string, data []T) error {
	var sample T
	if _, err := kb.checkType(name, getDataTypeFromSample(sample)); err != nil {
		return err
	}
	logicalSize, err := kb.GetArrayLogicalSize(name)
	if err != nil {
		return err
	}
	if len(data) != logicalSize {
		return fmt.Errorf("array %s holds %d values, got %d", name, logicalSize, len(data))
	}
	offsets, err := kb.readOffsets(name)
	if err != nil {
		return err
	}
	memory := kb.GetMemory(name)
	elementsPerValue := logicalSize / kb.getTotalElements()
	valueBytes := int64(unsafe.Sizeof(sample))

	srcOffset := 0
	for i := 0; i < kb.NumPartitions; i++ {
		n := kb.K[i] * elementsPerValue
		if n == 0 {
			continue
		}
		memory.CopyFromWithOffset(unsafe.Pointer(&data[srcOffset]), int64(n)*valueBytes, offsets[i]*valueBytes)
		srcOffset += n
	}
	return nil
}

// CopyArrayToHost copies array data from device to host, removing alignment padding
func CopyArrayToHost[T any](kb *Builder, name string) ([]T, error) {
	var sample T
	if _, err := kb.checkType(name, getDataTypeFromSample(sample)); err != nil {
		return nil, err
	}

	memory := kb.GetMemory(name)
	if memory == nil {
		return nil, fmt.Errorf("memory for %s not found", name)
	}
	offsets, err := kb.readOffsets(name)
	if err != nil {
		return nil, err
	}

	logicalSize, err := kb.GetArrayLogicalSize(name)
	if err != nil {
		return nil, err
	}
	result := make([]T, logicalSize)
	elementsPerValue := logicalSize / kb.getTotalElements()

	destOffset := 0
	for i := 0; i < kb.NumPartitions; i++ {
		partitionElements := kb.K[i] * elementsPerValue
		if partitionElements == 0 {
			continue
		}
		partitionBytes := int64(partitionElements) * int64(unsafe.Sizeof(sample))
		srcOffset := offsets[i] * int64(unsafe.Sizeof(sample))
		memory.CopyToWithOffset(unsafe.Pointer(&result[destOffset]), partitionBytes, srcOffset)
		destOffset += partitionElements
	}

	return result, nil
}

// getDataTypeFromSample infers DataType from a sample value
func getDataTypeFromSample[T any](sample T) DataType {
	switch any(sample).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return INT32
	case int64:
		return INT64
	default:
		return 0
	}
}
