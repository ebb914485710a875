// The showhome building automation suite
//
// Features
//
// - One binary, many small services (run only what a host needs)
//
// - Distributed message system (MQTT, run inputs and outputs over a network)
//
// - Lightweight, small memory footprint (runs on the Raspberry Pi)
//
// - Remotely controllable (REST API and command line)
//
// - Velux window and blind control with power budgeting
//
// - Lighting scenes across wired and wireless fixtures
//
// - Capacitive touch panel control
//
// - Live sensor wall display
//
// Services supported
//
// - REST API
//
// - OpenHab
//
// - Websocket live feeds
//
// Devices supported
//
// - Raspberry Pi GPIO (relay boards)
//
// - Velux KLF 050 interface (windows and blinds)
//
// - Halcyon DALI dimming controller
//
// - Xicato XIM BLE lighting modules
//
// - Tinkerforge multi touch bricklet
package showhome
