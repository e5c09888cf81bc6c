package event

import "errors"

// Application event names.
const (
	EventInvoked                  = "Invoked"
	EventSelectionElementSelected = "SelectionElementSelected"
	EventMenuOpened               = "MenuOpened"
	EventMenuClosed               = "MenuClosed"
	EventWindowOpened             = "WindowOpened"
	EventWindowClosed             = "WindowClosed"
	EventFocusChanged             = "FocusChanged"
	EventPropertyChanged          = "PropertyChanged"
	EventStructureChanged         = "StructureChanged"
)

// Property names.
const (
	PropertySelectionItemIsSelected = "SelectionItem.IsSelected"
	PropertyExpandCollapseState     = "ExpandCollapse.ExpandCollapseState"
	PropertyToggleState             = "Toggle.ToggleState"
	PropertyBoundingRectangle       = "BoundingRectangle"
	PropertyIsEnabled               = "IsEnabled"
	PropertyIsOffscreen             = "IsOffscreen"
	PropertyItemStatus              = "ItemStatus"
	PropertyName                    = "Name"
	PropertyWindowInteractionState  = "Window.WindowInteractionState"
	PropertyFrameworkID             = "FrameworkId"
	PropertyAutomationID            = "AutomationId"
	PropertyClassName               = "ClassName"
	PropertyControlType             = "ControlType"
	PropertyLocalizedControlType    = "LocalizedControlType"
	PropertyProviderDescription     = "ProviderDescription"
	PropertyProcessID               = "ProcessId"
)

// Hook identities.
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
)

// ErrElementVanished is returned by platform adapters when an element no
// longer resolves.
var ErrElementVanished = errors.New("element vanished")
