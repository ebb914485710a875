package config

var ExampleYaml = `
devices:
  velux.office.windows:
    name: Office Windows
    group: velux
    location: Office
  velux.office.blinds:
    name: Office Blinds
    group: velux
    location: Office
  velux.kitchen.windows:
    name: Kitchen Windows
    group: velux
    location: Kitchen
  velux.kitchen.blinds:
    name: Kitchen Blinds
    group: velux
    location: Kitchen
  light.lounge:
    name: Lounge
    type: light
    location: Lounge
protocols:
  velux:
    "3": velux.office.windows
    "4": velux.office.blinds
    "1": velux.kitchen.windows
    "2": velux.kitchen.blinds
endpoints:
  mqtt:
    broker: tcp://127.0.0.1:1883
  api: http://127.0.0.1:8723
gpio:
  port: 5000
  pins:
    "7": {pin: 7, direction: out}
    "8": {pin: 8, direction: out}
    "14": {pin: 14, direction: out}
    "15": {pin: 15, direction: out}
    "18": {pin: 18, direction: out}
    "23": {pin: 23, direction: out}
    "24": {pin: 24, direction: out}
    "25": {pin: 25, direction: out}
velux:
  port: 7000
  groups:
    main: 1
  things:
    3:
      label: Office Windows
      time: 45s
      group: main
      pins:
        - {pin: 25, device: "10.0.0.10:5000", action: open}
        - {pin: 25, device: "10.0.0.20:5000", action: open}
        - {pin: 24, device: "10.0.0.10:5000", action: close}
        - {pin: 24, device: "10.0.0.20:5000", action: close}
    4:
      label: Office Blinds
      time: 30s
      group: main
      pins:
        - {pin: 14, device: "10.0.0.10:5000", action: open}
        - {pin: 8, device: "10.0.0.20:5000", action: open}
        - {pin: 18, device: "10.0.0.10:5000", action: close}
        - {pin: 7, device: "10.0.0.20:5000", action: close}
    1:
      label: Kitchen Windows
      time: 45s
      group: main
      pins:
        - {pin: 23, device: "10.0.0.10:5000", action: open}
        - {pin: 14, device: "10.0.0.20:5000", action: open}
        - {pin: 15, device: "10.0.0.10:5000", action: close}
        - {pin: 15, device: "10.0.0.20:5000", action: close}
    2:
      label: Kitchen Blinds
      time: 30s
      group: main
      pins:
        - {pin: 7, device: "10.0.0.10:5000", action: open}
        - {pin: 8, device: "10.0.0.10:5000", action: close}
lighting:
  port: 8000
  halcyon:
    url: http://10.0.0.60
    user: admin
    password: secret
  gateway: http://10.0.0.10:9000
  rooms:
    2: Lounge
    3: Office
    4: Kitchen
  scenes:
    0:
      name: Party
      halcyon: {2: 40, 3: 40, 4: 20}
      xim:
        - {devices: [12], intensity: 0}    # Lampshade
        - {devices: [5], intensity: 100}   # Pendant
        - {devices: [1, 2, 3, 4, 6, 7, 8, 9, 10, 11], intensity: 50} # Spots
    1:
      name: Work
      halcyon: {2: 80, 3: 100, 4: 80}
      xim:
        - {devices: [12], intensity: 50}
        - {devices: [5], intensity: 50}
        - {devices: [1, 2, 3, 4, 6, 7, 8, 9, 10, 11], intensity: 100}
    2:
      name: Relax
      halcyon: {2: 80, 3: 40, 4: 40}
      xim:
        - {devices: [12], intensity: 100}
        - {devices: [5], intensity: 50}
        - {devices: [1, 2, 3, 4, 6, 7, 8, 9, 10, 11], intensity: 50}
    3:
      name: Sleep
      halcyon: {2: 5, 3: 0, 4: 5}
      xim:
        - {devices: [12], intensity: 0}
        - {devices: [5], intensity: 0}
        - {devices: [1, 2, 3, 4, 6, 7, 8, 9, 10, 11], intensity: 0}
touch:
  host: 10.0.0.40
  port: 4223
  uid: zzs
  electrodes:
    0: [http://10.0.0.10:8000/state/0/]
    1: [http://10.0.0.10:8000/state/1/]
    2: [http://10.0.0.10:8000/state/2/]
    3: [http://10.0.0.10:8000/state/3/]
    4: [http://10.0.0.10:7000/toggle/1/, http://10.0.0.10:7000/toggle/3/]
    5: [http://10.0.0.10:7000/toggle/2/, http://10.0.0.10:7000/toggle/4/]
xim:
  port: 9000
  expiry: 10m
sensors:
  port: 8100
  interval: 30s
openhab:
  url: http://10.0.0.10:8080
  items:
    velux.office.windows: OfficeWindows
    velux.office.blinds: OfficeBlinds
  command_item: ShowhomeScene
  poll: 5s
watchdog:
  devices:
    velux.office.windows: 24h
  pings:
    - 10.0.0.10
    - 10.0.0.20
    - 10.0.0.40
`

var ExampleConfig *Config

func init() {
	var err error
	ExampleConfig, err = OpenRaw([]byte(ExampleYaml))
	if err != nil {
		panic(err)
	}
}
