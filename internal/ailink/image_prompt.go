package ailink

import (
	"fmt"
	"strings"
)

// RobotLook describes how a concept image should present the robot.
type RobotLook struct {
	Type     string
	Features string
	Pose     string
}

var defaultLook = RobotLook{
	Type:     "humanoid robot",
	Features: "round head with cyan LED eyes, articulated arms with grippers, strong legs with stable feet",
	Pose:     "standing confidently in dynamic pose",
}

// InterpretRobot picks a robot archetype from keywords in the description.
// Rules are checked in order; the first match wins.
func InterpretRobot(description string) RobotLook {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "arm") && !strings.Contains(d, "humanoid"):
		return RobotLook{
			Type:     "robotic arm",
			Features: "industrial robotic arm with base, 3 rotating joints, precise gripper",
			Pose:     "positioned at 45-degree angle showing full range of motion",
		}
	case containsAny(d, "auto", "car", "rijden", "rover", "vehicle"):
		return RobotLook{
			Type:     "robot vehicle",
			Features: "compact chassis with 4 wheels, ultrasonic sensors on front, Arduino visible",
			Pose:     "angled view showing wheels and sensors",
		}
	case containsAny(d, "drone", "quadcopter"):
		return RobotLook{
			Type:     "quadcopter drone",
			Features: "4 propellers, carbon fiber frame, camera gimbal, LED lights",
			Pose:     "hovering position with propellers visible",
		}
	case containsAny(d, "spider", "hexapod"):
		return RobotLook{
			Type:     "hexapod spider robot",
			Features: "6 articulated legs with servo joints, round body with sensors",
			Pose:     "standing on all legs in walking position",
		}
	}
	return defaultLook
}

// BuildImagePrompt renders the product-photography prompt for a concept image.
func BuildImagePrompt(description string, look RobotLook) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ULTRA-DETAILED PHOTOREALISTIC PRODUCT PHOTOGRAPHY of an advanced %s - %s.\n\n", look.Type, strings.TrimSpace(description))
	fmt.Fprintf(&b, "ROBOT DESIGN: %s\n", strings.ToUpper(look.Type))
	fmt.Fprintf(&b, "APPEARANCE: %s\n", look.Features)
	b.WriteString(`COLORS & MATERIALS:
- Primary body: sleek glossy white plastic with subtle surface details
- Secondary panels: cyan blue (#00D9FF) transparent acrylic showing internal electronics
- Accent strips: neon orange (#FF6B00) LED strips along edges and joints
- Metal parts: polished chrome joints and hinges
- Electronics visible: green Arduino PCB with yellow capacitors, red LEDs and blue resistors behind a transparent window
- Eye lights: glowing electric cyan LEDs
- Status indicators: RGB LEDs on chest or head

`)
	fmt.Fprintf(&b, "POSE & COMPOSITION: %s, 45-degree front-right hero angle showing maximum detail.\n\n", look.Pose)
	b.WriteString(`ENVIRONMENT: premium photo studio with a pure white seamless infinity backdrop.

LIGHTING: large softbox key light from 45 degrees front-left, silver reflector fill from the right, strong white rim light from behind, cyan accent spots on the transparent panels, all robot LEDs glowing with realistic bloom, soft contact shadow on the floor.

MATERIALS: piano-gloss white plastic, mirror-polished chrome, cyan-tinted polycarbonate with realistic refraction, matte green PCB with shiny solder points, precise 1mm panel gaps.

CAMERA: 85mm lens at f/8, tack-sharp focus on the front, 8K detail, vibrant but natural colour grading.

DETAILS: visible precision screws, cable management through transparent sections, cooling vents with honeycomb structure, sensor modules on the head, articulated gripper fingers.

MOOD: cutting-edge technology, premium quality, award-winning commercial product photography.`)
	return b.String()
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
