// Package spin is the camera runtime used by the rest of the application.
// It mirrors the Spinnaker object model: a process-wide System hands out a
// CameraList, each Camera exposes GenICam node maps, and frames are Images
// that must be released right after use.
//
// Two backends exist: an in-process simulator (NewSimSystem) used for
// development and tests, and a cgo binding to the Spinnaker C library
// compiled with the "spinnaker" build tag.
package spin

import (
	"fmt"
	"time"
)

// GenICam feature names used by the recorder.
const (
	NodeAcquisitionMode    = "AcquisitionMode"
	NodeTriggerMode        = "TriggerMode"
	NodeTriggerSelector    = "TriggerSelector"
	NodeTriggerSource      = "TriggerSource"
	NodeTriggerSoftware    = "TriggerSoftware"
	NodeExposureAuto       = "ExposureAuto"
	NodeExposureTime       = "ExposureTime"
	NodeDeviceSerialNumber = "DeviceSerialNumber"
	NodeDeviceModelName    = "DeviceModelName"
	NodeDeviceVendorName   = "DeviceVendorName"
	NodeDeviceInformation  = "DeviceInformation"
)

// Version is the runtime library version.
type Version struct {
	Major, Minor, Type, Build uint
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Type, v.Build)
}

// System is the process-wide runtime handle. It must be released exactly
// once, after every CameraList obtained from it has been cleared.
type System interface {
	LibraryVersion() Version
	Cameras() (CameraList, error)
	Release() error
}

// CameraList holds references to the attached cameras.
type CameraList interface {
	Len() int
	At(i int) (Camera, error)
	// Clear drops every camera reference held by the list.
	Clear() error
}

// Camera is one physical device.
type Camera interface {
	Init() error
	DeInit() error
	IsInitialized() bool

	// NodeMap is the GenICam device node map (valid after Init).
	NodeMap() NodeMap
	// TLDeviceNodeMap is the transport layer node map (valid before Init).
	TLDeviceNodeMap() NodeMap

	BeginAcquisition() error
	EndAcquisition() error
	// NextImage blocks until a frame is available or timeout expires.
	NextImage(timeout time.Duration) (Image, error)
}

// Image is a frame buffer owned by the runtime until Release.
type Image interface {
	Incomplete() bool
	Status() ImageStatus
	Width() int
	Height() int
	PixelFormat() PixelFormat
	// Convert returns a new image in the requested format. The result must be
	// released independently of the source.
	Convert(format PixelFormat) (Image, error)
	// Save encodes the image to path; the format follows the file extension.
	Save(path string) error
	Release() error
}

// PixelFormat identifies an image pixel layout.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatMono8
	PixelFormatMono16
	PixelFormatBayerRG8
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatMono8:
		return "Mono8"
	case PixelFormatMono16:
		return "Mono16"
	case PixelFormatBayerRG8:
		return "BayerRG8"
	default:
		return "Unknown"
	}
}

// ParsePixelFormat maps a GenICam pixel format name to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "Mono8", "":
		return PixelFormatMono8, nil
	case "Mono16":
		return PixelFormatMono16, nil
	case "BayerRG8":
		return PixelFormatBayerRG8, nil
	default:
		return PixelFormatUnknown, fmt.Errorf("unsupported pixel format: %s", s)
	}
}

// ImageStatus is the transfer status reported with a frame.
type ImageStatus int

const (
	ImageUnknownError   ImageStatus = -1
	ImageNoError        ImageStatus = 0
	ImageCRCFailed      ImageStatus = 1
	ImageDataOverflow   ImageStatus = 2
	ImageMissingPacket  ImageStatus = 3
	ImageDataIncomplete ImageStatus = 10
)

func (s ImageStatus) String() string {
	switch s {
	case ImageNoError:
		return "no error"
	case ImageCRCFailed:
		return "CRC check failed"
	case ImageDataOverflow:
		return "data overflow"
	case ImageMissingPacket:
		return "missing packets"
	case ImageDataIncomplete:
		return "data incomplete"
	default:
		return fmt.Sprintf("status %d", int(s))
	}
}
