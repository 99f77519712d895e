package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// Vulkan is the only real HAL driver wired in; it registers itself
	// with hal.GetBackend on import.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/internal/logging"
)

// Device bundles an opened HAL device with the instance that owns it,
// so teardown can release both.
type Device struct {
	Instance hal.Instance
	Dev      hal.Device
	Queue    hal.Queue
}

// OpenDevice opens a GPU device: a discrete or integrated Vulkan
// adapter when one is available, otherwise the noop driver (which
// records nothing but validates the whole pipeline).
func OpenDevice() (*Device, error) {
	if d, err := openVulkan(); err == nil {
		return d, nil
	} else {
		logging.Logger().Info("vulkan unavailable, using noop driver", "error", err)
	}
	return openNoop()
}

func openVulkan() (*Device, error) {
	be, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not registered")
	}
	instance, err := be.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	logging.Logger().Info("adapter selected", "name", selected.Info.Name)
	return &Device{Instance: instance, Dev: openDev.Device, Queue: openDev.Queue}, nil
}

func openNoop() (*Device, error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("noop driver exposed no adapters")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("noop open: %w", err)
	}
	return &Device{Instance: instance, Dev: openDev.Device, Queue: openDev.Queue}, nil
}

// Release destroys the device and its owning instance.
func (d *Device) Release() {
	if d.Dev != nil {
		d.Dev.Destroy()
		d.Dev = nil
	}
	if d.Instance != nil {
		d.Instance.Destroy()
		d.Instance = nil
	}
}

func init() {
	// Registry path: a self-contained backend over whatever device
	// OpenDevice finds. Hosts that manage their own device call New
	// directly instead.
	backend.Register("native", func() backend.Backend {
		dev, err := OpenDevice()
		if err != nil {
			logging.Logger().Warn("native backend unavailable", "error", err)
			return nil
		}
		b := New(dev.Dev, dev.Queue)
		b.ownedDevice = dev
		return b
	})
}
