// Package ensemble restores fitted gradient boosted tree classifiers for
// inference.
//
// Trees are read from the LightGBM dump_model node layout carried by a
// tree_ensemble artifact, so models exported from LightGBM, scikit-learn
// GradientBoostingClassifier, XGBoost or CatBoost share one predictor once
// they are converted to that layout. Leaf values are taken as already scaled
// by the learning rate, as dump_model writes them.
//
// Example:
//
//	env, _ := model.LoadEnvelope("models/lightgbm.json")
//	clf, err := ensemble.FromEnvelope(env)
//	if err != nil {
//		log.Fatal(err)
//	}
//	label, _ := clf.Predict(x)
package ensemble
