// Package pipeline fingerprints pipeline descriptions and builds pipelines through a
// deduplicating cache. Equal descriptions always return the same driver pipeline, and a
// pipeline whose fixed-function state matches an earlier one that allows derivatives is
// created as its derivative.
package pipeline

import (
	"github.com/vkngwrapper/armory/hal"
	"github.com/vkngwrapper/armory/internal/hashing"
	"github.com/vkngwrapper/armory/resource"
	"github.com/vkngwrapper/armory/vkerr"
)

// ShaderModule is compiled SPIR-V and the hash of its contents
type ShaderModule struct {
	factory *resource.Factory
	handle  hal.Handle
	name    string
	hash    uint64
}

// spirvMagic is the first word of every SPIR-V module
const spirvMagic = 0x07230203

func NewShaderModule(factory *resource.Factory, name string, code []uint32) (*ShaderModule, error) {
	if len(code) < 5 || code[0] != spirvMagic {
		return nil, vkerr.New(vkerr.ValidationError, "shader module %q does not start with a SPIR-V header", name)
	}

	handle, res := factory.Device().CreateShaderModule(hal.ShaderModuleCreateInfo{Code: code}, nil)
	err := vkerr.FromResultf(res, "failed to create shader module %q", name)
	if err != nil {
		return nil, err
	}

	h := hashing.New().Int(len(code))
	for _, word := range code {
		h.Uint32(word)
	}

	module := &ShaderModule{factory: factory, handle: handle, name: name, hash: h.Sum()}
	factory.Track(module.Object(), name)
	return module, nil
}

func (m *ShaderModule) Handle() hal.Handle { return m.handle }

func (m *ShaderModule) Object() hal.Object { return hal.NewObject(hal.ObjectTypeShaderModule, m.handle) }

func (m *ShaderModule) Name() string { return m.name }

// Hash is computed from the module's code. Modules with the same code hash equal.
func (m *ShaderModule) Hash() uint64 { return m.hash }

// Destroy releases the driver module. Pipelines already built from it are unaffected.
func (m *ShaderModule) Destroy() error {
	m.factory.DestroyObject(m.Object())
	m.handle = hal.NullHandle
	return nil
}

// ShaderStage is one stage of a pipeline: a module, an entry point and optional specialization
// constants
type ShaderStage struct {
	Flags          hal.PipelineShaderStageCreateFlags
	Stage          hal.ShaderStageFlags
	Module         *ShaderModule
	Entry          string
	Specialization *hal.SpecializationInfo

	entryHash          uint64
	specializationHash uint64
}

// NewShaderStage builds a stage and hashes its entry point and specialization constants once.
// An empty entry point means "main".
func NewShaderStage(stage hal.ShaderStageFlags, module *ShaderModule, entry string, specialization *hal.SpecializationInfo) ShaderStage {
	s := ShaderStage{Stage: stage, Module: module, Entry: entry}
	if specialization != nil {
		s.Specialization = &hal.SpecializationInfo{
			MapEntries: append([]hal.SpecializationMapEntry(nil), specialization.MapEntries...),
			Data:       append([]byte(nil), specialization.Data...),
		}
	}

	s.entryHash = hashing.String64(s.entryPoint())
	s.specializationHash = specializationHash(s.Specialization)
	return s
}

// write adds the stage to a fingerprint: stage flag, module hash, entry point hash and
// specialization hash. Stages built as literals rather than with NewShaderStage are hashed here.
func (s ShaderStage) write(h *hashing.Hasher) {
	entryHash := s.entryHash
	if entryHash == 0 {
		entryHash = hashing.String64(s.entryPoint())
	}
	specHash := s.specializationHash
	if specHash == 0 {
		specHash = specializationHash(s.Specialization)
	}

	var moduleHash uint64
	if s.Module != nil {
		moduleHash = s.Module.hash
	}

	h.Int32(int32(s.Stage)).Uint64(moduleHash).Uint64(entryHash).Uint64(specHash)
}

// Hash identifies the stage's module, entry point and specialization
func (s ShaderStage) Hash() uint64 {
	h := hashing.New()
	s.write(h)
	return h.Sum()
}

func specializationHash(info *hal.SpecializationInfo) uint64 {
	if info == nil {
		return 0
	}

	h := hashing.New().Int(len(info.MapEntries))
	for _, entry := range info.MapEntries {
		h.Uint32(entry.ConstantID).Int(entry.Offset).Int(entry.Size)
	}
	return h.Bytes(info.Data).Sum()
}

func (s ShaderStage) validate(index int) error {
	if s.Module == nil || s.Module.handle.IsNull() {
		return vkerr.New(vkerr.ValidationError, "shader stage %d (%s) has no live module", index, s.Stage)
	}

	if s.Specialization != nil {
		for _, entry := range s.Specialization.MapEntries {
			if entry.Offset < 0 || entry.Size < 1 || entry.Offset+entry.Size > len(s.Specialization.Data) {
				return vkerr.New(vkerr.ValidationError, "specialization constant %d of stage %d reads outside its %d bytes of data", entry.ConstantID, index, len(s.Specialization.Data))
			}
		}
	}

	return nil
}

func (s ShaderStage) entryPoint() string {
	if s.Entry == "" {
		return "main"
	}
	return s.Entry
}

func (s ShaderStage) driverInfo() hal.PipelineShaderStageCreateInfo {
	return hal.PipelineShaderStageCreateInfo{
		Flags:          s.Flags,
		Stage:          s.Stage,
		Module:         s.Module.handle,
		Name:           s.entryPoint(),
		Specialization: s.Specialization,
	}
}
