package gemini

import (
	"fmt"
	"strings"
)

// BuildInstruction returns the instruction block sent ahead of the two images.
// The images are referenced by position, so the caller must send the user
// photo first and the garment second.
func BuildInstruction(garmentDescription string) string {
	desc := strings.TrimSpace(garmentDescription)
	desc = strings.ReplaceAll(desc, `"`, "'")
	if desc == "" {
		desc = "match the clothing reference image"
	}

	return fmt.Sprintf(`ROLE: Expert Photo Editor & Virtual Stylist.

TASK: Perform a realistic clothing replacement.

INPUTS:
1. The first image provided is the "TARGET USER".
2. The second image provided is the "CLOTHING REFERENCE".

INSTRUCTIONS:
- Generate a single image of the "TARGET USER" wearing the "CLOTHING REFERENCE".
- The output must be a pixel-perfect reproduction of the "TARGET USER" image (same face, same hair, same pose, same background, same lighting), EXCEPT for the clothes.
- The clothing from the "CLOTHING REFERENCE" must be warped and lighted to fit the "TARGET USER" naturally.
- Use this description for the clothing details: "%s".

CRITICAL RULES:
1. PRESERVE IDENTITY: Do NOT change the user's face, hair, or body shape.
2. PRESERVE SCENE: Do NOT change the background or lighting.
3. SINGLE PERSON: Do NOT add any other people to the image. The output must contain exactly ONE person (the user).
4. OCCLUSION HANDLING: If the user is holding a phone (mirror selfie) or has hands in front of their body, you MUST render the new clothing *underneath* the hands/phone. The hands and phone must remain visible and unchanged.
5. NO SPLIT SCREEN: Do not show the inputs. Show only the final result.

EXECUTE.`, desc)
}
