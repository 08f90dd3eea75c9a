// Package profile loads YAML device profiles.
//
// A profile declares devices that the server serves in-process with
// driver.Basic. Each device gets CONNECTION and DRIVER_INFO automatically;
// the profile lists any further vectors:
//
//	devices:
//	  - name: CCD Simulator
//	    exec: indi_simulator_ccd
//	    interface: 2
//	    properties:
//	      - name: CCD_TEMPERATURE
//	        kind: Number
//	        label: Temperature
//	        group: Main Control
//	        perm: rw
//	        timeout: 60
//	        elements:
//	          - name: CCD_TEMPERATURE_VALUE
//	            label: Temperature (C)
//	            value: "20"
//	            format: "%6.2f"
//	            min: -50
//	            max: 50
//	            step: 0.5
//
// Element values are strings interpreted by kind: "On"/"Off" for switches,
// state names for lights, decimal or sexagesimal for numbers.
package profile
