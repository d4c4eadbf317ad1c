package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	usb "github.com/kevmo314/go-usb"
	"github.com/kevmo314/go-uvc-gadget/pkg/descriptors"
)

func parseID(s string) uint16 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		log.Fatalf("invalid id %q: %v", s, err)
	}
	return uint16(v)
}

func main() {
	vid := flag.String("vid", "", "only check devices with this vendor id (hex)")
	pid := flag.String("pid", "", "only check devices with this product id (hex)")

	flag.Parse()

	vendorID, productID := parseID(*vid), parseID(*pid)

	devices, err := usb.DeviceList()
	if err != nil {
		log.Fatalf("Failed to list devices: %v", err)
	}

	found := 0
	for _, dev := range devices {
		if vendorID != 0 && dev.Descriptor.VendorID != vendorID {
			continue
		}
		if productID != 0 && dev.Descriptor.ProductID != productID {
			continue
		}

		handle, err := dev.Open()
		if err != nil {
			fmt.Printf("%04x:%04x %s: could not open: %v\n", dev.Descriptor.VendorID, dev.Descriptor.ProductID, dev.Path, err)
			continue
		}
		config, err := handle.GetActiveConfigDescriptor()
		if err != nil {
			fmt.Printf("%04x:%04x %s: no active configuration: %v\n", dev.Descriptor.VendorID, dev.Descriptor.ProductID, dev.Path, err)
			handle.Close()
			continue
		}

		control, streaming := 0, 0
		for _, iface := range config.Interfaces {
			if len(iface.AltSettings) == 0 {
				continue
			}
			alt := iface.AltSettings[0]
			if descriptors.ClassCode(alt.InterfaceClass) != descriptors.ClassCodeVideo {
				continue
			}
			switch descriptors.SubclassCode(alt.InterfaceSubClass) {
			case descriptors.SubclassCodeVideoControl:
				control++
				fmt.Printf("%04x:%04x interface %d: video control\n", dev.Descriptor.VendorID, dev.Descriptor.ProductID, alt.InterfaceNumber)
			case descriptors.SubclassCodeVideoStreaming:
				streaming++
				fmt.Printf("%04x:%04x interface %d: video streaming, %d alt settings\n",
					dev.Descriptor.VendorID, dev.Descriptor.ProductID, alt.InterfaceNumber, len(iface.AltSettings))
			}
		}
		handle.Close()

		if control > 0 && streaming > 0 {
			found++
			name := dev.Path
			if dev.SysfsStrings != nil && dev.SysfsStrings.Product != "" {
				name = dev.SysfsStrings.Product
			}
			fmt.Printf("%04x:%04x %s: uvc camera with %d control and %d streaming interfaces\n",
				dev.Descriptor.VendorID, dev.Descriptor.ProductID, name, control, streaming)
		}
	}

	if found == 0 {
		fmt.Println("No UVC cameras found")
		os.Exit(1)
	}
}
